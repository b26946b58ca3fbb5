// Package service drives sessions: it loads media, calls the engines and merges
// their results, and renders the overlay.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"scan-viewer/api/internal/media"
	"scan-viewer/api/internal/session"
	"scan-viewer/api/internal/store"
	"scan-viewer/api/internal/vlm"
	"scan-viewer/api/internal/vlm/types"
)

// Cache stores validated analysis results. store.AnalysisRepo implements it.
type Cache interface {
	Find(ctx context.Context, k store.CacheKey, maxAge time.Duration) (types.AnalysisResult, error)
	Upsert(ctx context.Context, k store.CacheKey, res types.AnalysisResult) error
}

type Options struct {
	Engines       *vlm.Engines
	Sessions      *session.Manager
	DefaultEngine string
	// Cache may be nil.
	Cache    Cache
	CacheTTL time.Duration
	// MaxPixels of 0 uses media.DefaultMaxPixels.
	MaxPixels int
	Logger    *logrus.Logger
}

type ScanService struct {
	engines       *vlm.Engines
	sessions      *session.Manager
	defaultEngine string
	cache         Cache
	cacheTTL      time.Duration
	maxPixels     int
	logger        *logrus.Logger
}

func NewScanService(o Options) *ScanService {
	return &ScanService{
		engines:       o.Engines,
		sessions:      o.Sessions,
		defaultEngine: o.DefaultEngine,
		cache:         o.Cache,
		cacheTTL:      o.CacheTTL,
		maxPixels:     o.MaxPixels,
		logger:        o.Logger,
	}
}

// InvalidInputError is a request the client can fix.
type InvalidInputError struct{ Err error }

func (e *InvalidInputError) Error() string { return e.Err.Error() }
func (e *InvalidInputError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return &InvalidInputError{Err: fmt.Errorf(format, args...)}
}

// ---- sessions ----

func (s *ScanService) CreateSession(engine, sensitivity string) (*session.Session, error) {
	if engine == "" {
		engine = s.defaultEngine
	}
	if _, err := s.engines.GetEngine(engine); err != nil {
		return nil, &InvalidInputError{Err: err}
	}
	sens, err := types.ParseSensitivity(sensitivity)
	if err != nil {
		return nil, &InvalidInputError{Err: err}
	}
	sess := s.sessions.Create(engine, sens)
	s.logger.WithFields(logrus.Fields{"session": sess.ID(), "engine": engine, "sensitivity": sens}).Info("session opened")
	return sess, nil
}

func (s *ScanService) Session(id string) (*session.Session, error) { return s.sessions.Get(id) }

func (s *ScanService) DeleteSession(id string) error { return s.sessions.Delete(id) }

// SetEngine switches the backend used for later requests.
func (s *ScanService) SetEngine(sess *session.Session, name string) error {
	eng, err := s.engines.GetEngine(name)
	if err != nil {
		return &InvalidInputError{Err: err}
	}
	sess.SetEngine(eng.Name())
	return nil
}

// SetSensitivity stores the level used by the next analysis.
func (s *ScanService) SetSensitivity(sess *session.Session, level string) (types.Sensitivity, error) {
	if strings.TrimSpace(level) == "" {
		return "", invalid("sensitivity is required")
	}
	sens, err := types.ParseSensitivity(level)
	if err != nil {
		return "", &InvalidInputError{Err: err}
	}
	sess.SetSensitivity(sens)
	return sens, nil
}

func (s *ScanService) Engines() []string { return s.engines.Available() }

func (s *ScanService) engine(sess *session.Session) (vlm.Engine, error) {
	return s.engines.GetEngine(sess.Engine())
}

// ---- media + analysis ----

// Upload replaces the session's media. Anything still running for the
// previous media is dropped when it completes.
func (s *ScanService) Upload(sess *session.Session, name, mime string, data []byte) (*media.Media, error) {
	m, err := media.LoadLimit(name, mime, data, s.maxPixels)
	if err != nil {
		return nil, err
	}
	gen := sess.Upload(m)
	s.logger.WithFields(logrus.Fields{
		"session":    sess.ID(),
		"media":      m.Name,
		"mime":       m.MIME,
		"bytes":      m.Size,
		"generation": gen,
	}).Info("media loaded")
	return m, nil
}

// Analyze runs a full analysis and replaces the session's findings. An empty
// sensitivity keeps the session's current one.
func (s *ScanService) Analyze(ctx context.Context, sess *session.Session, sens types.Sensitivity) (types.AnalysisResult, error) {
	tk, m, err := sess.BeginAnalysis(sens)
	if err != nil {
		return types.AnalysisResult{}, err
	}
	sens = sess.Sensitivity()
	log := s.logger.WithFields(logrus.Fields{"session": sess.ID(), "sensitivity": sens})

	eng, err := s.engine(sess)
	if err != nil {
		if ferr := sess.FailAnalysis(tk, err); ferr != nil {
			return types.AnalysisResult{}, ferr
		}
		return types.AnalysisResult{}, &types.AnalysisError{Engine: sess.Engine(), Err: err}
	}
	log = log.WithField("engine", eng.Name())
	key := store.CacheKey{MediaHash: m.Hash, Engine: eng.Name(), Model: eng.GetModel(), Sensitivity: sens}

	res, cached := s.lookup(ctx, key, log)
	if !cached {
		start := time.Now()
		res, err = eng.Analyze(ctx, types.AnalyzeRequest{Media: m.Data, MIME: m.MIME, Sensitivity: sens})
		if err != nil {
			log.WithError(err).Warn("analysis failed")
			if ferr := sess.FailAnalysis(tk, err); ferr != nil {
				return types.AnalysisResult{}, ferr
			}
			return types.AnalysisResult{}, err
		}
		log.WithFields(logrus.Fields{"findings": len(res.Findings), "took": time.Since(start).String()}).Info("analysis done")
		s.store(ctx, key, res, log)
	}
	if err := sess.ReplaceFindings(tk, res); err != nil {
		log.WithError(err).Info("analysis result dropped")
		return types.AnalysisResult{}, err
	}
	return res, nil
}

func (s *ScanService) lookup(ctx context.Context, key store.CacheKey, log *logrus.Entry) (types.AnalysisResult, bool) {
	if s.cache == nil {
		return types.AnalysisResult{}, false
	}
	res, err := s.cache.Find(ctx, key, s.cacheTTL)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Warn("analysis cache read failed")
		}
		return types.AnalysisResult{}, false
	}
	log.Debug("analysis cache hit")
	return res, true
}

func (s *ScanService) store(ctx context.Context, key store.CacheKey, res types.AnalysisResult, log *logrus.Entry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Upsert(ctx, key, res); err != nil {
		log.WithError(err).Warn("analysis cache write failed")
	}
}

// ---- chat ----

type ChatReply struct {
	Message types.ChatMessage `json:"message"`
	// Added is how many findings were appended to the overlay.
	Added int `json:"added"`
}

// Chat sends one user turn. Findings the model highlights are appended to the
// current result. On failure the session gets an apology message and the
// *types.ChatError is returned together with it.
func (s *ScanService) Chat(ctx context.Context, sess *session.Session, text string) (ChatReply, error) {
	tk, cc, err := sess.BeginChat(text)
	if err != nil {
		return ChatReply{}, err
	}
	log := s.logger.WithField("session", sess.ID())

	req := types.ConverseRequest{History: cc.History, Message: text}
	if cc.Media != nil {
		req.Media, req.MIME = cc.Media.Data, cc.Media.MIME
	}
	eng, err := s.engine(sess)
	var res types.ConverseResult
	if err == nil {
		log = log.WithField("engine", eng.Name())
		res, err = eng.Converse(ctx, req)
	} else {
		err = &types.ChatError{Engine: sess.Engine(), Err: err}
	}
	if err != nil {
		log.WithError(err).Warn("chat failed")
		msg, ferr := sess.FailChat(tk, err)
		if ferr != nil {
			return ChatReply{}, ferr
		}
		return ChatReply{Message: msg}, err
	}
	msg, added, err := sess.AppendFindings(tk, res.Text, res.Findings)
	if err != nil {
		log.WithError(err).Info("chat reply dropped")
		return ChatReply{}, err
	}
	if added > 0 {
		log.WithField("added", added).Info("findings appended from chat")
	}
	return ChatReply{Message: msg, Added: added}, nil
}

// ---- research ----

func (s *ScanService) Research(ctx context.Context, sess *session.Session, query string) (types.ResearchResult, error) {
	tk, err := sess.BeginResearch(query)
	if err != nil {
		return types.ResearchResult{}, err
	}
	eng, err := s.engine(sess)
	if err != nil {
		s.logger.WithField("session", sess.ID()).WithError(err).Warn("research failed")
		if ferr := sess.FailResearch(tk, err); ferr != nil {
			return types.ResearchResult{}, ferr
		}
		return types.ResearchResult{Summary: types.ResearchFailed, Sources: []types.Source{}}, nil
	}
	res, _ := eng.Research(ctx, types.ResearchRequest{Query: query})
	res.Sources = types.DedupeSources(res.Sources)
	if err := sess.CompleteResearch(tk, res); err != nil {
		return types.ResearchResult{}, err
	}
	return res, nil
}
