package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"relaygent/internal/logging"
)

const (
	ackTimeout  = 3 * time.Second
	pollTimeout = 5 * time.Second
)

// Source polls the aggregator for pending events and returns only those not
// yet seen this process lifetime. It reads either a cache file maintained by
// the external poller or the aggregator's HTTP endpoint directly.
type Source struct {
	cachePath string
	baseURL   string
	useHTTP   bool
	client    *http.Client
	logger    logging.Logger

	seen              map[string]struct{}
	pollFailures      int
	cacheMissingSince time.Time
	now               func() time.Time
}

// NewFileSource reads the aggregator's cache file; baseURL is still used for
// read-marker acks.
func NewFileSource(cachePath, baseURL string, logger logging.Logger) *Source {
	return newSource(cachePath, baseURL, false, logger)
}

// NewHTTPSource polls the aggregator endpoint directly.
func NewHTTPSource(baseURL string, logger logging.Logger) *Source {
	return newSource("", baseURL, true, logger)
}

func newSource(cachePath, baseURL string, useHTTP bool, logger logging.Logger) *Source {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Source{
		cachePath: cachePath,
		baseURL:   baseURL,
		useHTTP:   useHTTP,
		client:    &http.Client{Timeout: pollTimeout},
		logger:    logger,
		seen:      make(map[string]struct{}),
		now:       time.Now,
	}
}

// Poll returns the pending events carrying at least one dedup key not seen
// before, recording every key of each returned event. Read failures yield no
// events and count toward HTTP staleness.
func (s *Source) Poll() []Event {
	events, err := s.read()
	if err != nil {
		if s.useHTTP {
			s.pollFailures++
		}
		return nil
	}
	s.pollFailures = 0

	fresh := make([]Event, 0, len(events))
	for _, event := range events {
		keys := event.DedupKeys()
		unseen := false
		for key := range keys {
			if _, ok := s.seen[key]; !ok {
				unseen = true
				break
			}
		}
		if !unseen {
			continue
		}
		for key := range keys {
			s.seen[key] = struct{}{}
		}
		fresh = append(fresh, event)
	}
	return fresh
}

func (s *Source) read() ([]Event, error) {
	if s.useHTTP {
		return s.readHTTP()
	}
	return s.readCache()
}

func (s *Source) readCache() ([]Event, error) {
	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Source) readHTTP() ([]Event, error) {
	resp, err := s.client.Get(s.baseURL + "/notifications")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("notifications endpoint returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Stale reports whether the source itself has gone quiet: the cache file is
// older than limit (or has been missing that long), or, for an HTTP source,
// maxFailures consecutive polls have failed.
func (s *Source) Stale(limit time.Duration, maxFailures int) (bool, string) {
	if s.useHTTP {
		if s.pollFailures >= maxFailures {
			return true, "notification endpoint unreachable — waking to check status."
		}
		return false, ""
	}
	info, err := os.Stat(s.cachePath)
	if err != nil {
		if s.cacheMissingSince.IsZero() {
			s.cacheMissingSince = s.now()
			return false, ""
		}
		if s.now().Sub(s.cacheMissingSince) > limit {
			return true, "Notification cache missing — poller may not be running."
		}
		return false, ""
	}
	s.cacheMissingSince = time.Time{}
	if age := s.now().Sub(info.ModTime()); age > limit {
		return true, "Notification cache stale — waking to check status."
	}
	return false, ""
}

// ResetStaleness clears the staleness trackers after a forced wake.
func (s *Source) ResetStaleness() {
	s.pollFailures = 0
	s.cacheMissingSince = time.Time{}
}

// AckSlack asks the aggregator to advance its slack read marker so acked
// channels do not re-trigger the next sleep. Best-effort.
func (s *Source) AckSlack() {
	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/notifications/ack-slack", bytes.NewReader(nil))
	if err != nil {
		return
	}
	client := &http.Client{Timeout: ackTimeout}
	resp, err := client.Do(req)
	if err != nil {
		s.logger.Debug("slack ack failed", logging.F("error", err))
		return
	}
	_ = resp.Body.Close()
}
