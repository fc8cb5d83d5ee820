package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"agentlend/config"
	"agentlend/core/events"
	"agentlend/core/identity"
	"agentlend/core/state"
	"agentlend/native/bank"
	"agentlend/native/lending"
	"agentlend/native/reputation"
	"agentlend/observability/logging"
	"agentlend/observability/metrics"
	"agentlend/storage"
	"agentlend/storage/eventlog"
)

const serviceName = "agentlend"

// app holds the restored ledger for a single invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	requestID string
	from      common.Address
	hasFrom   bool

	db       storage.Database
	state    *state.Manager
	registry *identity.Registry
	token    *bank.Token
	rep      *reputation.Engine
	ledger   *lending.Engine
	archive  *eventlog.Store
	recorder *events.Recorder
}

func loadConfig(opts globalOptions, stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	logOpts := logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}
	if strings.TrimSpace(cfg.Logging.File) == "" {
		logOpts.Output = stderr
	}
	return cfg, logging.Setup(serviceName, cfg.Environment, logOpts), nil
}

func openApp(opts globalOptions, stderr io.Writer) (*app, error) {
	cfg, logger, err := loadConfig(opts, stderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, requestID: uuid.NewString(), recorder: &events.Recorder{}}
	a.logger = logger.With("requestId", a.requestID)

	if from := strings.TrimSpace(opts.from); from != "" {
		if !common.IsHexAddress(from) {
			return nil, fmt.Errorf("invalid --from address %q", opts.from)
		}
		a.from = common.HexToAddress(from)
		a.hasFrom = true
	}

	owner, err := cfg.OwnerAddress()
	if err != nil {
		return nil, err
	}
	moduleAddr, err := cfg.ModuleAddress()
	if err != nil {
		return nil, err
	}
	params, err := cfg.ReputationParams()
	if err != nil {
		return nil, err
	}

	a.db, err = storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a.state = state.NewManager(a.db)

	var emitter events.Emitter = a.recorder
	if cfg.EventLog.Enabled {
		a.archive, err = eventlog.Open(cfg.EventLog.Path)
		if err != nil {
			a.close()
			return nil, err
		}
		a.archive.SetLogger(a.logger)
		a.archive.SetRequestID(a.requestID)
		emitter = events.MultiEmitter{a.archive, a.recorder}
	}

	clock := opts.clock()
	a.registry = identity.NewRegistry()
	a.registry.SetNowFunc(func() uint64 { return uint64(clock().Unix()) })
	a.token = bank.NewToken(cfg.Ledger.TokenSymbol, owner)
	a.rep = reputation.NewEngine(a.registry, params)
	a.rep.SetLedger(moduleAddr)
	a.rep.SetEmitter(emitter)

	a.ledger = lending.NewEngine(owner, moduleAddr, cfg.LendingConfig())
	a.ledger.SetIdentity(a.registry)
	a.ledger.SetReputation(a.rep)
	a.ledger.SetCustody(bank.NewChannel(a.token, moduleAddr))
	a.ledger.SetEmitter(emitter)
	a.ledger.SetLogger(a.logger)
	a.ledger.SetMetrics(metrics.Lending())
	a.ledger.SetNowFunc(clock)

	if err := a.load(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) load() error {
	if err := a.registry.Load(a.state); err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	if err := a.token.Load(a.state); err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if err := a.rep.Load(a.state); err != nil {
		return fmt.Errorf("load reputation: %w", err)
	}
	if err := a.ledger.Load(a.state); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	return nil
}

func (a *app) persist() error {
	if err := a.registry.Save(a.state); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	if err := a.token.Save(a.state); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := a.rep.Save(a.state); err != nil {
		return fmt.Errorf("save reputation: %w", err)
	}
	if err := a.ledger.Save(a.state); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return a.state.Commit()
}

func (a *app) exec(name string, cmd command, args []string, stdout io.Writer) error {
	logger := a.logger.With("command", name)
	if a.hasFrom {
		logger = logger.With(logging.MaskAddress("from", a.from.Hex()))
	}
	if err := cmd.run(a, args, stdout); err != nil {
		a.state.Discard()
		logger.Warn("command failed", "error", err)
		return err
	}
	if !cmd.mutates {
		logger.Debug("query served")
		return nil
	}
	if err := a.persist(); err != nil {
		logger.Error("persist state", "error", err)
		return err
	}
	if a.archive != nil {
		if err := a.archive.Err(); err != nil {
			logger.Warn("event archive incomplete", "error", err)
		}
	}
	logger.Info("command committed", "events", strings.Join(a.recorder.Types(), ","))
	return nil
}

// caller returns the --from address, which mutating commands require.
func (a *app) caller() (common.Address, error) {
	if !a.hasFrom {
		return common.Address{}, fmt.Errorf("--from is required")
	}
	return a.from, nil
}

func (a *app) close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("close event archive", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
