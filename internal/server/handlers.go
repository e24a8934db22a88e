package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/stockhunter/stockhunter/internal/domain"
	"github.com/stockhunter/stockhunter/internal/modules/prices"
	"github.com/stockhunter/stockhunter/internal/modules/screener"
)

// collectionTimeout bounds a background backfill or update started over HTTP.
const collectionTimeout = 6 * time.Hour

// maxUploadBytes caps the stock master multipart upload.
const maxUploadBytes = 64 << 20

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps the error kinds observed at the core boundary onto HTTP
// status codes. Broker failures surface as 502 with the broker's message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNotInitialised):
		status = http.StatusBadRequest
	// Credential rejections are 401 only on the validation endpoint, which
	// writes its own response; anywhere else bad credentials are bad input.
	case errors.Is(err, domain.ErrAuthFailure):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyInitialised),
		errors.Is(err, domain.ErrCollectionRunning):
		status = http.StatusConflict
	default:
		if _, ok := domain.AsBrokerError(err); ok {
			status = http.StatusBadGateway
		}
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		return domain.ErrInvalidInput
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScreen runs a screening pass over the Korean universe.
func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	cond := screener.DefaultCondition()
	if err := s.decodeJSON(r, &cond); err != nil {
		s.writeError(w, err)
		return
	}

	// Korean screening reads bars from the local store; an empty store
	// means the full backfill has not run yet.
	hasBars, err := s.store.HasBars()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !hasBars {
		s.writeError(w, fmt.Errorf("%w: run a database initialize first", domain.ErrNotInitialised))
		return
	}

	// Fundamental gates need a live quote client; pure technical screens
	// run entirely off the local store.
	var quotes screener.QuoteClient
	if cond.NeedsFundamentals() {
		client, err := s.clients.Interactive(Credentials{
			AppKey: cond.AppKey, AppSecret: cond.AppSecret, IsProduction: cond.IsProduction,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		quotes = client
	}

	engine := screener.NewEngine(screener.KoreanCapability(s.store, s.universe, quotes), s.log)
	result, err := engine.Screen(r.Context(), cond)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleUSScreen runs the US variant against one exchange (query parameter
// exchange=NAS|NYS|AMS, default NAS). Bars come live from the broker, so
// credentials are always required.
func (s *Server) handleUSScreen(w http.ResponseWriter, r *http.Request) {
	cond := screener.DefaultCondition()
	if err := s.decodeJSON(r, &cond); err != nil {
		s.writeError(w, err)
		return
	}

	exchange := r.URL.Query().Get("exchange")
	if exchange == "" {
		exchange = "NAS"
	}

	client, err := s.clients.Interactive(Credentials{
		AppKey: cond.AppKey, AppSecret: cond.AppSecret, IsProduction: cond.IsProduction,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	engine := screener.NewEngine(screener.USCapability(s.universe, client, exchange), s.log)
	result, err := engine.Screen(r.Context(), cond)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleValidateCredentials mint-tests the supplied credentials against the
// broker: 200 when a token comes back, 401 otherwise.
func (s *Server) handleValidateCredentials(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := s.decodeJSON(r, &creds); err != nil {
		s.writeError(w, err)
		return
	}
	if creds.AppKey == "" || creds.AppSecret == "" {
		s.writeError(w, domain.ErrInvalidInput)
		return
	}

	client, err := s.clients.Interactive(creds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := client.ValidateCredentials(r.Context()); err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"valid":  false,
			"detail": err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":       true,
		"environment": client.Environment(),
	})
}

func (s *Server) handleStockCodes(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.universe.KoreanUniverse()
	if err != nil {
		s.writeError(w, err)
		return
	}

	codes := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		codes = append(codes, inst.Code)
	}
	sort.Strings(codes)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"codes": codes,
		"count": len(codes),
	})
}

func (s *Server) handleUSSymbols(w http.ResponseWriter, r *http.Request) {
	exchange := r.URL.Query().Get("exchange")
	if exchange == "" {
		exchange = "NAS"
	}

	instruments, err := s.universe.USUniverse(exchange)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"exchange": exchange,
		"symbols":  instruments,
		"count":    len(instruments),
	})
}

func (s *Server) handleDatabaseStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStatistics()
	if err != nil {
		s.writeError(w, err)
		return
	}

	lastInit, _ := s.store.GetMeta(prices.MetaLastFullInit)
	lastUpdate, _ := s.store.GetMeta(prices.MetaLastDailyUpdate)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"initialized":     stats.BarCount > 0,
		"instrumentCount": stats.InstrumentCount,
		"barCount":        stats.BarCount,
		"oldestDate":      stats.OldestDate,
		"newestDate":      stats.NewestDate,
		"lastFullInit":    lastInit,
		"lastDailyUpdate": lastUpdate,
		"collecting":      s.collector.Running(),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.collector.Progress().Snapshot())
}

type initializeRequest struct {
	Credentials
	ForceRebuild bool `json:"forceRebuild"`
}

// handleInitialize kicks off the full historical backfill in the background
// and returns 202. A populated store without forceRebuild gets 409 up front.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	client, err := s.clients.Collector(req.Credentials)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if !req.ForceRebuild {
		hasBars, err := s.store.HasBars()
		if err != nil {
			s.writeError(w, err)
			return
		}
		if hasBars {
			s.writeError(w, domain.ErrAlreadyInitialised)
			return
		}
	}

	if err := s.collector.SetClient(client); err != nil {
		s.writeError(w, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collectionTimeout)
		defer cancel()
		if err := s.collector.Initialize(ctx, req.ForceRebuild); err != nil {
			s.log.Error().Err(err).Msg("Background backfill failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"operation": "initialize",
	})
}

// handleUpdate kicks off the incremental gap fill in the background.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := s.decodeJSON(r, &creds); err != nil {
		s.writeError(w, err)
		return
	}

	client, err := s.clients.Collector(creds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.collector.SetClient(client); err != nil {
		s.writeError(w, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collectionTimeout)
		defer cancel()
		if err := s.collector.Update(ctx); err != nil {
			s.log.Error().Err(err).Msg("Background update failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"operation": "update",
	})
}

// handleSyncStockNames backfills missing display names via broker lookups.
// Runs synchronously; name syncs are small compared to collections.
func (s *Server) handleSyncStockNames(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := s.decodeJSON(r, &creds); err != nil {
		s.writeError(w, err)
		return
	}

	client, err := s.clients.Interactive(creds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.collector.SetClient(client); err != nil {
		s.writeError(w, err)
		return
	}

	updated, err := s.collector.SyncStockNames(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// handleUploadStockMaster ingests fixed-width listing files uploaded as
// multipart form data. The market is inferred from each filename.
func (s *Server) handleUploadStockMaster(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, domain.ErrInvalidInput)
		return
	}

	files := make(map[string][]byte)
	for _, headers := range r.MultipartForm.File {
		for _, header := range headers {
			file, err := header.Open()
			if err != nil {
				s.writeError(w, domain.ErrInvalidInput)
				return
			}
			content, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				s.writeError(w, domain.ErrInvalidInput)
				return
			}
			files[header.Filename] = content
		}
	}

	counts, err := s.universe.RefreshFromUpload(files)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"updated": counts})
}
