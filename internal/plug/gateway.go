package plug

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/gray-logic-plug/internal/controller"
)

// Invoker runs the external controller. *controller.Invoker satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, action controller.Action) (controller.Result, error)
}

// Options configures a Gateway.
type Options struct {
	// Identity describes the managed plug. DeviceID is required.
	Identity Identity

	// Invoker runs the controller. Required.
	Invoker Invoker

	// Cache holds state between requests. A new empty cache is created
	// when nil.
	Cache *StateCache

	// Parser validates status output. Defaults to NewParser(Identity, "").
	// The gateway uses its own copy, so one parser may serve several
	// gateways.
	Parser *Parser

	// MaxConcurrent bounds simultaneous controller invocations.
	// Zero means unbounded.
	MaxConcurrent int

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Gateway mediates every read and write of the plug's state.
type Gateway struct {
	identity Identity
	invoker  Invoker
	cache    *StateCache
	parser   *Parser
	sem      *semaphore.Weighted
	now      func() time.Time
	logger   Logger

	recMu     sync.RWMutex
	recorders []Recorder
}

// NewGateway validates opts and returns a ready gateway.
func NewGateway(opts Options) (*Gateway, error) {
	if opts.Invoker == nil {
		return nil, fmt.Errorf("%w: invoker", ErrMissingDependency)
	}
	if opts.Identity.DeviceID == "" {
		return nil, fmt.Errorf("%w: device id", ErrMissingDependency)
	}
	if opts.MaxConcurrent < 0 {
		return nil, fmt.Errorf("max concurrent must be >= 0, got %d", opts.MaxConcurrent)
	}

	g := &Gateway{
		identity: opts.Identity,
		invoker:  opts.Invoker,
		cache:    opts.Cache,
		parser:   opts.Parser,
		now:      opts.Clock,
		logger:   noopLogger{},
	}
	if g.cache == nil {
		g.cache = NewStateCache()
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.parser == nil {
		g.parser = NewParser(opts.Identity, "")
	}
	g.parser = g.parser.withClock(g.now)
	if opts.MaxConcurrent > 0 {
		g.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return g, nil
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	g.logger = logger
}

// AddRecorder registers r to observe every subsequent operation.
func (g *Gateway) AddRecorder(r Recorder) {
	if r == nil {
		return
	}
	g.recMu.Lock()
	g.recorders = append(g.recorders, r)
	g.recMu.Unlock()
}

// Identity returns the configured identity of the plug.
func (g *Gateway) Identity() Identity {
	return g.identity
}

// Power returns the last power state known to the gateway.
func (g *Gateway) Power() PowerState {
	return g.cache.Power()
}

// Cached returns the last live status without invoking the controller.
func (g *Gateway) Cached() (DeviceStatus, bool) {
	return g.cache.Get()
}

// PowerOn switches the plug on.
func (g *Gateway) PowerOn(ctx context.Context) (Result, error) {
	return g.setPower(ctx, true)
}

// PowerOff switches the plug off.
func (g *Gateway) PowerOff(ctx context.Context) (Result, error) {
	return g.setPower(ctx, false)
}

func (g *Gateway) setPower(ctx context.Context, on bool) (Result, error) {
	action := ActionOff
	if on {
		action = ActionOn
	}

	start := time.Now()
	_, err := g.invoke(ctx, action)
	elapsed := time.Since(start)

	if err != nil {
		ctlErr := &ControlError{Action: action, Err: err}
		g.logger.Error("power change failed",
			"device_id", g.identity.DeviceID,
			"action", string(action),
			"error", err,
		)
		g.record(ctx, Event{DeviceID: g.identity.DeviceID, Action: action, Err: ctlErr, Elapsed: elapsed})
		return Result{}, ctlErr
	}

	now := g.now().UTC()
	g.cache.SetPower(on, now)

	res := Result{
		Action:    action,
		Method:    MethodExternal,
		IsOn:      on,
		Timestamp: now,
	}
	g.logger.Info("power changed",
		"device_id", g.identity.DeviceID,
		"action", string(action),
		"elapsed", elapsed,
	)
	g.record(ctx, Event{DeviceID: g.identity.DeviceID, Action: action, Result: res, Elapsed: elapsed})
	return res, nil
}

// GetStatus queries the controller and returns the plug's status.
//
// It never fails. When the invocation fails the cached fallback is returned
// with MethodError; when the output is rejected the fallback is returned with
// MethodCached. In both cases Status.Diagnostic carries the reason.
func (g *Gateway) GetStatus(ctx context.Context) Result {
	start := time.Now()
	out, err := g.invoke(ctx, ActionStatus)
	elapsed := time.Since(start)

	if err != nil {
		res := g.degraded(MethodError, err)
		g.logger.Warn("status invocation failed, serving fallback",
			"device_id", g.identity.DeviceID,
			"source", string(res.Status.Source),
			"error", err,
		)
		g.record(ctx, Event{DeviceID: g.identity.DeviceID, Action: ActionStatus, Result: res, Err: err, Elapsed: elapsed})
		return res
	}

	status, err := g.parser.Parse(out.Stdout)
	if err != nil {
		res := g.degraded(MethodCached, err)
		g.logger.Warn("status output rejected, serving fallback",
			"device_id", g.identity.DeviceID,
			"source", string(res.Status.Source),
			"error", err,
		)
		g.record(ctx, Event{DeviceID: g.identity.DeviceID, Action: ActionStatus, Result: res, Err: err, Elapsed: elapsed})
		return res
	}

	g.cache.Put(status)
	res := Result{
		Action:    ActionStatus,
		Method:    MethodLive,
		IsOn:      status.IsOn,
		Status:    &status,
		Timestamp: status.ObservedAt,
	}
	g.logger.Debug("status read",
		"device_id", status.DeviceID,
		"is_on", status.IsOn,
		"elapsed", elapsed,
	)
	g.record(ctx, Event{DeviceID: g.identity.DeviceID, Action: ActionStatus, Result: res, Elapsed: elapsed})
	return res
}

// Toggle reads the live status and flips it. A degraded reading aborts
// with ErrStatusUnknown rather than guessing.
func (g *Gateway) Toggle(ctx context.Context) (Result, error) {
	current := g.GetStatus(ctx)
	if current.Method != MethodLive {
		err := ErrStatusUnknown
		if current.Status != nil && current.Status.Diagnostic != "" {
			err = fmt.Errorf("%w: %s", ErrStatusUnknown, current.Status.Diagnostic)
		}
		return Result{}, &ControlError{Action: ActionToggle, Err: err}
	}
	if current.IsOn {
		return g.PowerOff(ctx)
	}
	return g.PowerOn(ctx)
}

func (g *Gateway) degraded(method Method, cause error) Result {
	now := g.now().UTC()
	status := g.cache.Fallback(g.identity, now)
	status.Diagnostic = cause.Error()
	return Result{
		Action:    ActionStatus,
		Method:    method,
		IsOn:      status.IsOn,
		Status:    &status,
		Timestamp: now,
	}
}

// invoke runs one controller invocation, waiting for a slot when
// concurrency is bounded.
func (g *Gateway) invoke(ctx context.Context, action Action) (controller.Result, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return controller.Result{}, &controller.InvocationError{
				Action:   action,
				ExitCode: -1,
				Err:      fmt.Errorf("waiting for controller: %w", err),
			}
		}
		defer g.sem.Release(1)
	}
	return g.invoker.Invoke(ctx, action)
}

func (g *Gateway) record(ctx context.Context, ev Event) {
	g.recMu.RLock()
	recorders := g.recorders
	g.recMu.RUnlock()

	for _, r := range recorders {
		r.Record(ctx, ev)
	}
}
