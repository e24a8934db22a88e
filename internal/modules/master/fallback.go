package master

import "github.com/stockhunter/stockhunter/internal/domain"

// minimalUniverse is the last-resort universe used when the store is empty,
// no upload happened, and the embedded listing fails to load. Large caps
// only, so a fresh install can still exercise every code path.
var minimalUniverse = []domain.Instrument{
	{Code: "005930", Name: "삼성전자", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "000660", Name: "SK하이닉스", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "373220", Name: "LG에너지솔루션", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "207940", Name: "삼성바이오로직스", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "005380", Name: "현대차", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "000270", Name: "기아", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "068270", Name: "셀트리온", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "005490", Name: "POSCO홀딩스", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "035420", Name: "NAVER", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "051910", Name: "LG화학", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "006400", Name: "삼성SDI", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "105560", Name: "KB금융", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "055550", Name: "신한지주", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "035720", Name: "카카오", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "012330", Name: "현대모비스", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "066570", Name: "LG전자", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "017670", Name: "SK텔레콤", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "015760", Name: "한국전력", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "033780", Name: "KT&G", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "086790", Name: "하나금융지주", Market: domain.MarketKOSPI, IsActive: true},
	{Code: "247540", Name: "에코프로비엠", Market: domain.MarketKOSDAQ, IsActive: true},
	{Code: "086520", Name: "에코프로", Market: domain.MarketKOSDAQ, IsActive: true},
	{Code: "196170", Name: "알테오젠", Market: domain.MarketKOSDAQ, IsActive: true},
	{Code: "293490", Name: "카카오게임즈", Market: domain.MarketKOSDAQ, IsActive: true},
	{Code: "058470", Name: "리노공업", Market: domain.MarketKOSDAQ, IsActive: true},
}
