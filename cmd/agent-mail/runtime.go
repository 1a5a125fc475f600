package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/config"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/ops"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/remote"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/render"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/session"
)

// environment is everything the process takes from the outside world.
// Tests replace it wholesale.
type environment struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Env    config.LookupEnv
	Home   string
	Getwd  func() (string, error)
	Now    func() time.Time

	// Session process probing. Zero values use the real process.
	Prober    session.LivenessProber
	Tree      session.ProcessTree
	SelfPID   int
	ParentPID int

	// Issues overrides the bd-backed issue tracker.
	Issues ops.IssueTracker
}

func osEnvironment() (*environment, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &environment{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Env:    os.LookupEnv,
		Home:   home,
		Getwd:  os.Getwd,
		Now:    time.Now,
	}, nil
}

// runtime holds per-invocation state. Connections are opened on first use
// and closed by the app's After hook.
type runtime struct {
	env    *environment
	cfg    *config.Config
	logger *slog.Logger

	gateway  *remote.Gateway
	registry *session.Registry
	stores   map[db.Mode]*db.Store
}

func newRuntime(env *environment) *runtime {
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Env == nil {
		env.Env = os.LookupEnv
	}
	if env.Getwd == nil {
		env.Getwd = os.Getwd
	}
	return &runtime{env: env, stores: make(map[db.Mode]*db.Store)}
}

// setup loads configuration and the logger. It runs once, before any
// command action.
func (rt *runtime) setup(c *cli.Context) error {
	cfg, err := config.Load(rt.env.Home, filepath.Join(rt.env.Home, ".config", "agent-mail"), rt.env.Env)
	if err != nil {
		return err
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	rt.cfg = cfg
	rt.logger = slog.New(slog.NewTextHandler(rt.env.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	return nil
}

// close releases whatever was opened.
func (rt *runtime) close() error {
	if rt.gateway != nil {
		if err := rt.gateway.Close(); err != nil {
			rt.logger.Debug("close gateway", "error", err)
		}
	}
	for mode, store := range rt.stores {
		if err := store.Close(); err != nil {
			rt.logger.Debug("close store", "mode", mode, "error", err)
		}
	}
	return nil
}

// printer renders for the current command's --json setting.
func (rt *runtime) printer(c *cli.Context) *render.Printer {
	return render.New(rt.env.Stdout, rt.env.Stderr, render.Options{
		JSON:    c.Bool("json"),
		Profile: render.DetectProfile(rt.env.Stdout, render.LookupEnv(rt.env.Env)),
	})
}

func (rt *runtime) remote() *remote.Gateway {
	if rt.gateway == nil {
		rt.gateway = remote.New(remote.Options{
			URL:           rt.cfg.URL,
			Token:         rt.cfg.Token,
			Timeout:       time.Duration(rt.cfg.Timeout),
			Logger:        rt.logger,
			ClientName:    "agent-mail",
			ClientVersion: Version,
		})
	}
	return rt.gateway
}

func (rt *runtime) sessions() *session.Registry {
	if rt.registry == nil {
		rt.registry = session.New(session.Options{
			Dir:       rt.cfg.SessionsDir,
			Prober:    rt.env.Prober,
			Tree:      rt.env.Tree,
			SelfPID:   rt.env.SelfPID,
			ParentPID: rt.env.ParentPID,
			Now:       rt.env.Now,
			Logger:    rt.logger,
		})
	}
	return rt.registry
}

// store opens the mirror in the given mode, once per invocation.
func (rt *runtime) store(mode db.Mode) (*db.Store, error) {
	if s, ok := rt.stores[mode]; ok {
		return s, nil
	}
	s, err := db.Open(rt.cfg.DBPath, mode, db.WithLogger(rt.logger), db.WithClock(rt.env.Now))
	if err != nil {
		return nil, err
	}
	rt.stores[mode] = s
	return s, nil
}

func (rt *runtime) issues() ops.IssueTracker {
	if rt.env.Issues != nil {
		return rt.env.Issues
	}
	return ops.BeadsTracker{}
}

// project resolves --project to an absolute path, defaulting to the
// working directory.
func (rt *runtime) project(c *cli.Context) (string, error) {
	p := c.String("project")
	if p == "" {
		wd, err := rt.env.Getwd()
		if err != nil {
			return "", errors.NewInternal(err)
		}
		p = wd
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.NewInvalidRequest("invalid project path: " + p)
	}
	return abs, nil
}

// sessionTTL is --ttl when given, else the configured default.
func (rt *runtime) sessionTTL(c *cli.Context) time.Duration {
	if c.IsSet("ttl") {
		return time.Duration(c.Int("ttl")) * time.Second
	}
	return time.Duration(rt.cfg.SessionTTL)
}
