// Package process owns the agent subprocess: fresh starts, resumes with an
// injected message, and a blocking monitor loop with hang and silence
// detection.
package process

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"relaygent/internal/config"
	"relaygent/internal/logging"
)

const (
	terminateWait = 5 * time.Second
	killWait      = 10 * time.Second
	reapWait      = 30 * time.Second
)

// hangPatterns are the known failure substrings scanned for in the agent's
// combined output during a run.
var hangPatterns = []string{"No messages returned", "API Error"}

// TranscriptInspector is the slice of the transcript package the supervisor
// needs to judge a run.
type TranscriptInspector interface {
	Size(sessionID, workspace string) int64
	CheckIncompleteExit(sessionID, workspace string) (bool, string)
	ContextFill(sessionID, workspace string) float64
}

type trackedProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

func track(cmd *exec.Cmd) *trackedProcess {
	p := &trackedProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p
}

func (p *trackedProcess) running() bool {
	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *trackedProcess) waitTimeout(d time.Duration) bool {
	if p == nil {
		return true
	}
	select {
	case <-p.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (p *trackedProcess) exitCode() int {
	if p == nil || p.cmd == nil || p.cmd.ProcessState == nil {
		return 0
	}
	return p.cmd.ProcessState.ExitCode()
}

// Supervisor manages at most one live agent subprocess, bound to a session
// id the orchestrator may swap between runs.
type Supervisor struct {
	cfg       config.Config
	timer     *config.Timer
	logger    logging.Logger
	inspector TranscriptInspector
	resolver  CommandResolver

	workspace string

	logPath      string
	promptPath   string
	settingsPath string

	// mu guards sessionID and proc; Terminate may run from a signal
	// goroutine while Monitor is polling.
	mu        sync.Mutex
	sessionID string
	proc      *trackedProcess

	logFile       *os.File
	contextWarned bool
	sleep         func(time.Duration)
}

func NewSupervisor(cfg config.Config, timer *config.Timer, sessionID, workspace string, inspector TranscriptInspector, logger logging.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logPath, err := cfg.RelayLogPath()
	if err != nil {
		return nil, err
	}
	promptPath, err := cfg.PromptPath()
	if err != nil {
		return nil, err
	}
	settingsPath, err := cfg.AgentSettingsPath()
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		cfg:          cfg,
		timer:        timer,
		logger:       logger,
		inspector:    inspector,
		resolver:     DefaultResolver(),
		sessionID:    strings.TrimSpace(sessionID),
		workspace:    workspace,
		logPath:      logPath,
		promptPath:   promptPath,
		settingsPath: settingsPath,
		sleep:        time.Sleep,
	}, nil
}

// SetResolver installs a command resolver override.
func (s *Supervisor) SetResolver(resolver CommandResolver) {
	if resolver != nil {
		s.resolver = resolver
	}
}

func (s *Supervisor) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// SetSessionID rebinds the supervisor to a new session id. The next launch
// starts that session; any live process keeps running until terminated.
func (s *Supervisor) SetSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = strings.TrimSpace(id)
}

func (s *Supervisor) currentProc() *trackedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

func (s *Supervisor) setProc(p *trackedProcess) {
	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()
}

func (s *Supervisor) Workspace() string {
	return s.workspace
}

// StartFresh launches the agent with a fresh session id, piping the prompt
// file as its fully-buffered opening input. Returns the relay log's line
// count before the launch so hang scans stay scoped to this run.
func (s *Supervisor) StartFresh() (int, error) {
	logStart := s.countLogLines()
	if err := s.openLog(); err != nil {
		return 0, err
	}
	prompt, err := os.Open(s.promptPath)
	if err != nil {
		return 0, fmt.Errorf("open prompt: %w", err)
	}
	defer prompt.Close()

	argv, err := s.resolver.Resolve(s.cfg.AgentCommand(), []string{
		"--print", "--dangerously-skip-permissions",
		"--settings", s.settingsPath,
		"--session-id", s.SessionID(),
	})
	if err != nil {
		return 0, err
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.workspace
	cmd.Stdin = prompt
	cmd.Stdout = s.logFile
	cmd.Stderr = s.logFile
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start agent: %w", err)
	}
	s.setProc(track(cmd))
	s.contextWarned = false
	return logStart, nil
}

// Resume relaunches the agent against the current session id and writes
// message to its input. Any still-tracked prior process is force-terminated
// first so two processes never race on the same session.
func (s *Supervisor) Resume(message string) (int, error) {
	s.Terminate()
	logStart := s.countLogLines()
	if err := s.openLog(); err != nil {
		return 0, err
	}
	argv, err := s.resolver.Resolve(s.cfg.AgentCommand(), []string{
		"--resume", s.SessionID(),
		"--print", "--dangerously-skip-permissions",
		"--settings", s.settingsPath,
	})
	if err != nil {
		return 0, err
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.workspace
	cmd.Stdout = s.logFile
	cmd.Stderr = s.logFile
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 0, err
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return 0, fmt.Errorf("start agent: %w", err)
	}
	s.setProc(track(cmd))
	s.contextWarned = false
	if _, err := stdin.Write([]byte(message)); err != nil {
		s.logger.Warn("resume input write failed", logging.F("error", err))
	}
	if err := stdin.Close(); err != nil {
		s.logger.Warn("resume input close failed", logging.F("error", err))
	}
	return logStart, nil
}

// Monitor blocks until the agent exits, watching for deadline expiry, hang
// patterns in this run's log lines, and transcript silence. The poll
// interval scales with remaining time.
func (s *Supervisor) Monitor(logStart int) RunResult {
	proc := s.currentProc()
	sessionID := s.SessionID()
	attemptStart := time.Now()
	nextHangCheck := attemptStart.Add(s.cfg.HangCheckDelay())
	hung := false
	timedOut := false

	initialSize := s.inspector.Size(sessionID, s.workspace)
	lastSize := initialSize
	lastActivity := time.Now()

	for proc.running() {
		if s.timer.IsExpired() {
			s.logger.Info("time limit reached, terminating")
			s.Terminate()
			timedOut = true
			break
		}

		if now := time.Now(); !now.Before(nextHangCheck) {
			nextHangCheck = now.Add(s.cfg.HangCheckDelay())
			if s.scanForHang(logStart) {
				s.logger.Warn("hang detected", logging.F("cause", "error pattern"))
				hung = true
				s.Terminate()
				break
			}
		}

		currentSize := s.inspector.Size(sessionID, s.workspace)
		if currentSize > lastSize {
			lastSize = currentSize
			lastActivity = time.Now()
		} else if time.Since(lastActivity) > s.cfg.SilenceTimeout() {
			s.logger.Warn("hang detected",
				logging.F("cause", "no activity"),
				logging.F("silence", s.cfg.SilenceTimeout()))
			hung = true
			s.Terminate()
			break
		}

		if !s.contextWarned {
			if fill := s.ContextFill(); fill >= s.cfg.ContextThreshold() {
				s.logger.Info("context threshold reached, wrap-up handled by agent hook",
					logging.F("context_pct", fill))
				s.contextWarned = true
			}
		}

		s.sleep(s.pollInterval())
	}

	s.reap(proc)

	finalSize := s.inspector.Size(sessionID, s.workspace)
	incomplete, _ := s.inspector.CheckIncompleteExit(sessionID, s.workspace)
	return RunResult{
		ExitCode:   proc.exitCode(),
		Hung:       hung,
		TimedOut:   timedOut,
		NoOutput:   finalSize == initialSize,
		Incomplete: incomplete,
		ContextPct: s.ContextFill(),
	}
}

// ContextFill prefers the side-channel percentage written by the agent's
// context hook over re-scanning the transcript.
func (s *Supervisor) ContextFill() float64 {
	data, err := os.ReadFile(s.cfg.ContextPctPath())
	if err == nil {
		if pct, parseErr := strconv.ParseFloat(strings.TrimSpace(string(data)), 64); parseErr == nil && pct > 0 {
			return pct
		}
	}
	return s.inspector.ContextFill(s.SessionID(), s.workspace)
}

// Terminate force-stops any tracked process: SIGTERM, bounded wait, SIGKILL,
// bounded wait, then abandon tracking as a last resort.
func (s *Supervisor) Terminate() {
	proc := s.currentProc()
	if !proc.running() {
		return
	}
	s.logger.Info("terminating agent process")
	_ = signalTerminate(proc.cmd.Process)
	if proc.waitTimeout(terminateWait) {
		s.logger.Info("process terminated gracefully")
		return
	}
	s.logger.Warn("graceful terminate failed, killing")
	_ = signalKill(proc.cmd.Process)
	if proc.waitTimeout(killWait) {
		s.logger.Info("process killed")
		return
	}
	s.logger.Warn("process did not die after kill, abandoning")
	s.mu.Lock()
	if s.proc == proc {
		s.proc = nil
	}
	s.mu.Unlock()
}

func (s *Supervisor) reap(proc *trackedProcess) {
	if proc == nil {
		return
	}
	if proc.waitTimeout(reapWait) {
		return
	}
	s.logger.Warn("process not reaped in time, killing")
	_ = signalKill(proc.cmd.Process)
	_ = proc.waitTimeout(killWait)
}

func (s *Supervisor) pollInterval() time.Duration {
	remaining := s.timer.Remaining()
	switch {
	case remaining <= time.Minute:
		return time.Second
	case remaining <= 5*time.Minute:
		return 5 * time.Second
	default:
		return 30 * time.Second
	}
}

func (s *Supervisor) openLog() error {
	if s.logFile != nil {
		_ = s.logFile.Close()
		s.logFile = nil
	}
	if err := os.MkdirAll(filepath.Dir(s.logPath), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open relay log: %w", err)
	}
	s.logFile = file
	return nil
}

// Close releases the supervisor's log handle. The tracked process, if any,
// is left to Terminate.
func (s *Supervisor) Close() {
	if s.logFile != nil {
		_ = s.logFile.Close()
		s.logFile = nil
	}
}

func (s *Supervisor) countLogLines() int {
	file, err := os.Open(s.logPath)
	if err != nil {
		return 0
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	for scanner.Scan() {
		count++
	}
	return count
}

// scanForHang checks only the log lines appended during this run for known
// failure substrings.
func (s *Supervisor) scanForHang(logStart int) bool {
	file, err := os.Open(s.logPath)
	if err != nil {
		return false
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	index := 0
	for scanner.Scan() {
		if index >= logStart {
			line := scanner.Text()
			for _, pattern := range hangPatterns {
				if strings.Contains(line, pattern) {
					return true
				}
			}
		}
		index++
	}
	return false
}
