// Package local spawns jobs as child processes of the daemon, each in its
// own process group and working directory.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/taskd/model"
	"github.com/viant/taskd/service/bundle"
	"github.com/viant/taskd/service/process"
)

// Environment variables passed to every job process.
const (
	EnvJob     = "TASKD_JOB"
	EnvProject = "TASKD_PROJECT"
	EnvTask    = "TASKD_TASK"
	EnvVersion = "TASKD_VERSION"
	EnvArgs    = "TASKD_ARGS"
)

// Service is an os/exec based process.Spawner.
type Service struct {
	workDir        string
	logsDir        string
	defaultCommand []string
	keepWorkDir    bool
	env            map[string]string
	fs             afs.Service
	logger         *slog.Logger
}

var _ process.Spawner = (*Service)(nil)

// Spawn materialises the bundle in <workDir>/<jobID> and starts the task
// command there, with args as a JSON object on stdin and output appended to
// <logsDir>/<project>/<task>/<jobID>.log.
func (s *Service) Spawn(ctx context.Context, spec *process.Spec) (process.Handle, error) {
	aBundle, err := bundle.Open(spec.Bundle)
	if err != nil {
		return nil, err
	}
	argv := s.command(aBundle, spec.Task)
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: task %s has no command and no default command is configured", model.ErrSpawnFailure, spec.Task)
	}
	args := spec.Args
	if args == nil {
		args = map[string]string{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode args: %v", model.ErrSpawnFailure, err)
	}

	workDir := filepath.Join(s.workDir, spec.JobID)
	workURL := url.Normalize(workDir, file.Scheme)
	cleanup := func() {
		if s.keepWorkDir {
			return
		}
		if err := s.fs.Delete(context.Background(), workURL); err != nil {
			s.logger.Warn("failed to remove work dir", "job", spec.JobID, "dir", workDir, "error", err)
		}
	}
	if err = aBundle.Extract(ctx, s.fs, workURL); err != nil {
		cleanup()
		if errors.Is(err, model.ErrCorruptArtifact) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrSpawnFailure, err)
	}

	logPath := filepath.Join(s.logsDir, spec.Project, spec.Task, spec.JobID+".log")
	if err = os.MkdirAll(filepath.Dir(logPath), file.DefaultDirOsMode); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: failed to create log dir: %v", model.ErrSpawnFailure, err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, file.DefaultFileOsMode)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: failed to open log: %v", model.ErrSpawnFailure, err)
	}

	if strings.Contains(argv[0], "/") && !filepath.IsAbs(argv[0]) {
		argv[0] = filepath.Join(workDir, argv[0])
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Stdin = bytes.NewReader(argsJSON)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = s.environ(aBundle, spec, string(argsJSON))
	setProcessGroup(cmd)
	if err = cmd.Start(); err != nil {
		_ = logFile.Close()
		cleanup()
		return nil, fmt.Errorf("%w: %v", model.ErrSpawnFailure, err)
	}
	ret := &handle{
		cmd:     cmd,
		logURL:  url.Normalize(logPath, file.Scheme),
		done:    make(chan struct{}),
		cleanup: cleanup,
	}
	go ret.reap(logFile)
	s.logger.Debug("spawned job process", "job", spec.JobID, "project", spec.Project, "task", spec.Task, "pid", ret.PID())
	return ret, nil
}

func (s *Service) command(aBundle *bundle.Bundle, task string) []string {
	if definition := aBundle.Task(task); definition != nil && len(definition.Command) > 0 {
		return append([]string(nil), definition.Command...)
	}
	if len(s.defaultCommand) == 0 {
		return nil
	}
	return append(append([]string(nil), s.defaultCommand...), task)
}

func (s *Service) environ(aBundle *bundle.Bundle, spec *process.Spec, argsJSON string) []string {
	ret := os.Environ()
	add := func(env map[string]string) {
		for k, v := range env {
			ret = append(ret, k+"="+v)
		}
	}
	add(s.env)
	add(aBundle.Manifest.Env)
	if definition := aBundle.Task(spec.Task); definition != nil {
		add(definition.Env)
	}
	return append(ret,
		EnvJob+"="+spec.JobID,
		EnvProject+"="+spec.Project,
		EnvTask+"="+spec.Task,
		EnvVersion+"="+spec.Version,
		EnvArgs+"="+argsJSON,
	)
}

// New creates a local spawner
func New(workDir, logsDir string, options ...Option) *Service {
	ret := &Service{
		workDir: workDir,
		logsDir: logsDir,
		fs:      afs.New(),
		logger:  slog.Default(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}
