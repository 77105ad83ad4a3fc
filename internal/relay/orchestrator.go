package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaygent/internal/config"
	"relaygent/internal/logging"
	"relaygent/internal/process"
	"relaygent/internal/store"
)

// Resume messages for the main loop. Kind-specific and mutually exclusive
// in phrasing so transcripts show what actually went wrong.
const (
	hungResumeMessage = "An API error was detected (no response or repeated failures). " +
		"Please proceed with the original instructions."
	noOutputResumeMessage = "Your previous session exited without producing output. " +
		"Please proceed with the original instructions."
	incompleteResumeMessage = "Continue where you left off."
)

func silenceResumeMessage(timeout time.Duration) string {
	return fmt.Sprintf("Your previous API call failed after %d seconds. "+
		"Please proceed with the original instructions.", int(timeout.Seconds()))
}

// SleepChecker reports whether the agent finished communicating, from the
// transcript's final turns.
type SleepChecker interface {
	ShouldSleep(sessionID, workspace string) bool
}

// Journal receives best-effort run records; nil disables journaling.
type Journal interface {
	Upsert(record *store.RunRecord) (*store.RunRecord, error)
}

// WakeCycler runs the sleep/wake loop between communicative turns.
type WakeCycler interface {
	RunWakeCycle(agent Agent) *process.RunResult
}

// Orchestrator is the top-level state machine: fresh-start vs resume vs
// give-up vs successor-spawn, based on supervisor results, with the
// sleep/wake coordinator driven in between.
type Orchestrator struct {
	cfg      config.Config
	timer    *config.Timer
	logger   logging.Logger
	agent    Agent
	sleepMgr WakeCycler
	status   StatusSink
	hooks    *Hooks
	journal  Journal
	sleeper  SleepChecker

	newSessionID func() string
	sleep        func(time.Duration)

	// mu guards the run state below; Shutdown reads it from the signal
	// goroutine while Run mutates it.
	mu              sync.Mutex
	startedAt       time.Time
	predecessor     string
	crashCount      int
	incompleteCount int
	wakeCount       int
}

func NewOrchestrator(cfg config.Config, timer *config.Timer, agent Agent, sleepMgr WakeCycler, sleeper SleepChecker, status StatusSink, hooks *Hooks, journal Journal, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	if status == nil {
		status = NopStatus()
	}
	if hooks == nil {
		hooks = NewHooks(cfg, logger)
	}
	return &Orchestrator{
		cfg:          cfg,
		timer:        timer,
		logger:       logger,
		agent:        agent,
		sleepMgr:     sleepMgr,
		status:       status,
		hooks:        hooks,
		journal:      journal,
		sleeper:      sleeper,
		newSessionID: func() string { return uuid.New().String() },
		sleep:        time.Sleep,
	}
}

// Shutdown handles signal-driven termination: stop the subprocess, report
// off, and leave. No graceful drain is attempted. Safe to call from a
// signal goroutine while Run is active.
func (o *Orchestrator) Shutdown() {
	o.status.Report(StatusOff)
	o.agent.Terminate()
	o.record(store.OutcomeAborted, 0)
}

func (o *Orchestrator) record(outcome store.Outcome, contextPct float64) {
	if o.journal == nil {
		return
	}
	o.mu.Lock()
	record := &store.RunRecord{
		SessionID:       o.agent.SessionID(),
		Workspace:       o.agent.Workspace(),
		StartedAt:       o.startedAt,
		EndedAt:         time.Now().UTC(),
		Outcome:         outcome,
		ContextPct:      contextPct,
		CrashCount:      o.crashCount,
		IncompleteCount: o.incompleteCount,
		WakeCount:       o.wakeCount,
		Predecessor:     o.predecessor,
	}
	o.mu.Unlock()
	if _, err := o.journal.Upsert(record); err != nil {
		o.logger.Debug("journal write failed", logging.F("error", err))
	}
}

func (o *Orchestrator) rebindSession() {
	retiring := o.agent.SessionID()
	o.agent.SetSessionID(o.newSessionID())
	o.mu.Lock()
	o.predecessor = retiring
	o.startedAt = time.Now().UTC()
	o.mu.Unlock()
}

func (o *Orchestrator) markStarted() {
	o.mu.Lock()
	o.startedAt = time.Now().UTC()
	o.mu.Unlock()
}

func (o *Orchestrator) bumpCrash() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.crashCount++
	return o.crashCount
}

func (o *Orchestrator) bumpIncomplete() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.incompleteCount++
	return o.incompleteCount
}

func (o *Orchestrator) bumpWake() {
	o.mu.Lock()
	o.wakeCount++
	o.mu.Unlock()
}

func (o *Orchestrator) resetIncomplete() {
	o.mu.Lock()
	o.incompleteCount = 0
	o.mu.Unlock()
}

func (o *Orchestrator) resetCounters() {
	o.mu.Lock()
	o.crashCount = 0
	o.incompleteCount = 0
	o.mu.Unlock()
}

// spawnSuccessor persists durable state, clears the side-channel context
// file, and rebinds the supervisor to a fresh session id.
func (o *Orchestrator) spawnSuccessor(reason string, contextPct float64) {
	o.logger.Info(reason, logging.F("remaining_min", int(o.timer.Remaining().Minutes())))
	o.record(store.OutcomeSuccessor, contextPct)
	o.hooks.CommitKB()
	o.hooks.CleanupContextFile()
	o.rebindSession()
	o.logger.Info("successor session", logging.F("session", o.agent.SessionID()))
	o.sleep(3 * time.Second)
}

// Run is the main loop. Returns the process exit code: 0 on any graceful
// completion, including giving up after repeated crashes.
func (o *Orchestrator) Run() int {
	o.hooks.RotateLog()
	o.logger.Info("starting relay run",
		logging.F("session", o.agent.SessionID()),
		logging.F("workspace", o.agent.Workspace()))

	o.markStarted()
	o.record(store.OutcomeRunning, 0)

	sessionEstablished := false
	resumeReason := ""

	for !o.timer.IsExpired() {
		o.status.Report(StatusWorking)

		var (
			logStart int
			err      error
		)
		if sessionEstablished {
			logStart, err = o.agent.Resume(resumeReason)
		} else {
			logStart, err = o.agent.StartFresh()
		}
		if err != nil {
			o.status.Report(StatusCrashed)
			crashes := o.bumpCrash()
			if crashes > o.cfg.MaxRetries() {
				o.logger.Error("too many launch failures, giving up",
					logging.F("count", crashes), logging.F("error", err))
				o.hooks.NotifyCrash(crashes, -1)
				o.record(store.OutcomeCrashed, 0)
				break
			}
			o.logger.Warn("agent launch failed, retrying fresh",
				logging.F("error", err),
				logging.F("attempt", fmt.Sprintf("%d/%d", crashes, o.cfg.MaxRetries())))
			o.rebindSession()
			sessionEstablished = false
			resumeReason = ""
			o.sleep(15 * time.Second)
			continue
		}

		result := o.agent.Monitor(logStart)
		if o.timer.IsExpired() {
			o.record(store.OutcomeTimedOut, result.ContextPct)
			break
		}

		if result.Hung {
			o.status.Report(StatusCrashed)
			o.logger.Warn("hung, resuming")
			sessionEstablished = true
			resumeReason = hungResumeMessage
			o.sleep(15 * time.Second)
			continue
		}

		if result.NoOutput {
			if sessionEstablished {
				o.logger.Warn("resume failed (no session), starting fresh")
				o.rebindSession()
				sessionEstablished = false
				resumeReason = ""
			} else {
				o.logger.Warn("exited without output, resuming")
				sessionEstablished = true
				resumeReason = noOutputResumeMessage
			}
			o.sleep(5 * time.Second)
			continue
		}

		if result.Incomplete {
			attempts := o.bumpIncomplete()
			if attempts > o.cfg.MaxIncompleteRetries() {
				o.logger.Warn("too many incomplete exits, starting fresh session",
					logging.F("count", attempts))
				o.rebindSession()
				sessionEstablished = false
				resumeReason = ""
				o.resetIncomplete()
				o.sleep(15 * time.Second)
			} else {
				delay := backoffDelay(o.cfg.IncompleteBaseDelay(), o.cfg.IncompleteDelayCap(), attempts)
				o.logger.Warn("exited mid-conversation, resuming",
					logging.F("attempt", fmt.Sprintf("%d/%d", attempts, o.cfg.MaxIncompleteRetries())),
					logging.F("delay", delay))
				sessionEstablished = true
				resumeReason = incompleteResumeMessage
				o.sleep(delay)
			}
			continue
		}

		if result.ExitCode != 0 {
			o.status.Report(StatusCrashed)
			crashes := o.bumpCrash()
			if crashes > o.cfg.MaxRetries() {
				o.logger.Error("too many crashes, giving up", logging.F("count", crashes))
				o.hooks.NotifyCrash(crashes, result.ExitCode)
				o.record(store.OutcomeCrashed, result.ContextPct)
				break
			}
			o.logger.Warn("crashed, retrying",
				logging.F("exit_code", result.ExitCode),
				logging.F("attempt", fmt.Sprintf("%d/%d", crashes, o.cfg.MaxRetries())))
			o.rebindSession()
			sessionEstablished = false
			resumeReason = ""
			o.sleep(15 * time.Second)
			continue
		}

		if !o.sleeper.ShouldSleep(o.agent.SessionID(), o.agent.Workspace()) {
			o.logger.Warn("session incomplete (no textual output), resuming")
			sessionEstablished = true
			resumeReason = silenceResumeMessage(o.cfg.SilenceTimeout())
			o.sleep(2 * time.Second)
			continue
		}

		// Clean, communicative turn.
		sessionEstablished = true
		o.resetCounters()
		o.record(store.OutcomeClean, result.ContextPct)

		if result.ContextPct >= o.cfg.ContextThreshold() && o.timer.HasSuccessorTime() {
			o.spawnSuccessor(
				fmt.Sprintf("context at %.0f%%, spawning successor", result.ContextPct),
				result.ContextPct)
			sessionEstablished = false
			o.resetCounters()
			continue
		}

		o.bumpWake()
		o.record(store.OutcomeSleeping, result.ContextPct)
		wakeResult := o.sleepMgr.RunWakeCycle(o.agent)
		if wakeResult != nil && wakeResult.ContextPct >= o.cfg.ContextThreshold() && o.timer.HasSuccessorTime() {
			o.spawnSuccessor(
				fmt.Sprintf("context at %.0f%% after wake, spawning successor", wakeResult.ContextPct),
				wakeResult.ContextPct)
			sessionEstablished = false
			o.resetCounters()
			continue
		}
		break
	}

	o.hooks.CommitKB()
	o.status.Report(StatusOff)
	o.hooks.CleanupContextFile()
	o.logger.Info("relay run complete")
	return 0
}
