package relay

import (
	"fmt"
	"time"

	"relaygent/internal/config"
	"relaygent/internal/logging"
	"relaygent/internal/notify"
	"relaygent/internal/process"
)

// Wake-cycle retry messages. Each failure kind gets its own phrasing so the
// agent can tell what actually happened.
const (
	wakeHungMessage       = "An API error was detected. Continue where you left off."
	wakeIncompleteMessage = "Continue where you left off."
	wakeNoOutputMessage   = "Your wake session exited without output. Continue where you left off."
	wakeCrashMessage      = "You crashed and were resumed. Continue where you left off."
)

// Agent is the supervisor surface the coordinator and orchestrator drive.
type Agent interface {
	StartFresh() (int, error)
	Resume(message string) (int, error)
	Monitor(logStart int) process.RunResult
	Terminate()
	SessionID() string
	SetSessionID(id string)
	Workspace() string
}

// Notifier is the notification-source surface the sleep manager needs.
type Notifier interface {
	Poll() []notify.Event
	Stale(limit time.Duration, maxFailures int) (bool, string)
	ResetStaleness()
	AckSlack()
}

// SleepManager blocks the harness while the agent has nothing to do and
// resumes it when notifications arrive or the source itself goes quiet.
type SleepManager struct {
	cfg    config.Config
	timer  *config.Timer
	source Notifier
	status StatusSink
	logger logging.Logger

	sleep func(time.Duration)
	now   func() time.Time
}

func NewSleepManager(cfg config.Config, timer *config.Timer, source Notifier, status StatusSink, logger logging.Logger) *SleepManager {
	if logger == nil {
		logger = logging.Nop()
	}
	if status == nil {
		status = NopStatus()
	}
	return &SleepManager{
		cfg:    cfg,
		timer:  timer,
		source: source,
		status: status,
		logger: logger,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// WaitForWake polls for new notifications until one arrives, the source
// goes stale (forcing a synthetic system wake), or the deadline expires.
func (m *SleepManager) WaitForWake() (bool, []notify.Event) {
	m.status.Report(StatusSleeping)
	m.logger.Info("sleeping, waiting for notifications")

	for {
		events := m.source.Poll()
		if len(events) > 0 {
			m.logger.Info("notification received", logging.F("type", events[0].Type))
			return true, events
		}

		if stale, reason := m.source.Stale(m.cfg.CacheStaleLimit(), m.cfg.MaxPollFailures()); stale {
			m.logger.Warn("notification source stale, force-waking", logging.F("reason", reason))
			m.source.ResetStaleness()
			return true, []notify.Event{{Type: "system", Message: reason}}
		}

		if m.timer.IsExpired() {
			m.logger.Info("out of time")
			return false, nil
		}

		m.sleep(m.cfg.SleepPollInterval())
	}
}

// AutoSleepAndWake sleeps until woken and returns the formatted wake
// message, with a wall-clock anchor appended so the agent knows when it is.
func (m *SleepManager) AutoSleepAndWake() (bool, string) {
	if m.timer.IsExpired() {
		return false, ""
	}
	woken, events := m.WaitForWake()
	if !woken {
		return false, ""
	}

	for _, event := range events {
		if event.Source == "slack" {
			m.source.AckSlack()
			break
		}
	}

	message := notify.FormatWakeMessage(events)
	message += "\n\nCurrent time: " + m.now().Format("15:04:05 MST")

	m.status.Report(StatusWorking)
	m.logger.Info("waking agent")
	return true, message
}

// RunWakeCycle drives sleep/resume/monitor iterations until the deadline
// expires (nil) or context fill crosses the wrap-up threshold (the final
// result, for the orchestrator's successor decision).
func (m *SleepManager) RunWakeCycle(agent Agent) *process.RunResult {
	for {
		woken, message := m.AutoSleepAndWake()
		if !woken {
			return nil
		}
		m.sleep(3 * time.Second)

		logStart, err := agent.Resume(message)
		if err != nil {
			m.logger.Warn("resume failed on wake, retrying", logging.F("error", err))
			m.sleep(5 * time.Second)
			continue
		}
		result := agent.Monitor(logStart)
		if result.TimedOut {
			return nil
		}

		retries := 0
		for result.Incomplete || result.Hung || result.NoOutput {
			if m.timer.IsExpired() {
				return nil
			}
			retries++
			if retries > m.cfg.MaxIncompleteRetries() {
				m.logger.Warn("too many wake retries, giving up on this wake cycle",
					logging.F("retries", retries))
				break
			}
			delay := backoffDelay(m.cfg.IncompleteBaseDelay(), m.cfg.IncompleteDelayCap(), retries)
			kind, resumeMsg := wakeRetryMessage(result)
			m.logger.Info("retrying wake resume",
				logging.F("kind", kind),
				logging.F("attempt", fmt.Sprintf("%d/%d", retries, m.cfg.MaxIncompleteRetries())),
				logging.F("delay", delay))
			m.sleep(delay)
			logStart, err = agent.Resume(resumeMsg)
			if err != nil {
				m.logger.Warn("wake retry resume failed", logging.F("error", err))
				break
			}
			result = agent.Monitor(logStart)
			if result.TimedOut {
				return nil
			}
		}

		if result.ExitCode != 0 {
			m.logger.Warn("crashed during wake, resuming", logging.F("exit_code", result.ExitCode))
			m.sleep(3 * time.Second)
			logStart, err = agent.Resume(wakeCrashMessage)
			if err == nil {
				result = agent.Monitor(logStart)
			}
		}

		if result.ContextPct >= m.cfg.ContextThreshold() {
			return &result
		}
	}
}

func wakeRetryMessage(result process.RunResult) (string, string) {
	switch {
	case result.Hung:
		return "hung", wakeHungMessage
	case result.Incomplete:
		return "incomplete", wakeIncompleteMessage
	default:
		return "no output", wakeNoOutputMessage
	}
}

// backoffDelay doubles the base per consecutive retry, capped.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
