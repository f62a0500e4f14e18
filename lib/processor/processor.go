package processor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dRef/lib/common"
	"github.com/ValentinKolb/dRef/lib/ref"
	"github.com/ValentinKolb/dRef/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger(common.LoggerProcessor)

// --------------------------------------------------------------------------
// Results and statistics
// --------------------------------------------------------------------------

// Result summarizes one sweep
type Result struct {
	Drained  int  `json:"drained"`  // Dead cells taken from the queues
	Removed  int  `json:"removed"`  // Cells handed to remove without error
	Failures int  `json:"failures"` // Cells whose removal failed
	Expired  int  `json:"expired"`  // Time cells expired by the clock advance
	Relaxed  int  `json:"relaxed"`  // Soft cells whose strong hold was dropped
	Skipped  bool `json:"skipped"`  // Another sweep was running or the processor is closed
}

func (r *Result) add(o Result) {
	r.Drained += o.Drained
	r.Removed += o.Removed
	r.Failures += o.Failures
	r.Expired += o.Expired
	r.Relaxed += o.Relaxed
}

// TaskInfo describes one task of a processor
type TaskInfo struct {
	Name    string `json:"name"`
	Backlog int    `json:"backlog"`
}

// Info contains statistics about a processor
type Info struct {
	Running      bool          `json:"running"`
	Closed       bool          `json:"closed"`
	Sweeps       int64         `json:"sweeps"`
	Removed      int64         `json:"removed"`
	Failures     int64         `json:"failures"`
	RemoveRate   float64       `json:"remove_rate"` // one minute rate of removed cells per second
	LastDuration time.Duration `json:"last_duration"`
	MeanDuration time.Duration `json:"mean_duration"`
	BatchMedian  int           `json:"batch_median"` // dead cells drained per recorded sweep (bucket estimate)
	BatchP99     int           `json:"batch_p99"`
	Tasks        []TaskInfo    `json:"tasks"`
}

// --------------------------------------------------------------------------
// Processor
// --------------------------------------------------------------------------

// Processor sweeps the reference queues of one collection.
//
// Thread-safety: All methods are safe for concurrent use. Sweeps never overlap,
// a sweep requested while another one runs is skipped.
type Processor struct {
	cfg   Config
	tasks []Task

	lifecycle sync.Mutex // serializes Start and Close
	sweeping  sync.Mutex
	running   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	tasksOnce sync.Once
	stop      chan struct{}

	lastDuration atomic.Int64

	// go-metrics meters and timers register with a process wide ticker,
	// the remove rate is an EWMA ticked by the processor itself
	registry gometrics.Registry
	sweeps   gometrics.Counter
	removed  gometrics.Counter
	failures gometrics.Counter
	duration gometrics.Histogram
	rate     gometrics.EWMA
	rateMu   sync.Mutex
	lastTick time.Time
	batches  *util.Histogram
}

// New creates a stopped processor for the given tasks
func New(cfg Config, tasks ...Task) *Processor {
	registry := gometrics.NewRegistry()
	return &Processor{
		cfg:      cfg,
		tasks:    tasks,
		stop:     make(chan struct{}),
		registry: registry,
		sweeps:   gometrics.GetOrRegisterCounter("sweeps", registry),
		removed:  gometrics.GetOrRegisterCounter("removed", registry),
		failures: gometrics.GetOrRegisterCounter("failures", registry),
		duration: gometrics.GetOrRegisterHistogram("sweep.duration", registry, gometrics.NewExpDecaySample(1028, 0.015)),
		rate:     gometrics.NewEWMA1(),
		lastTick: time.Now(),
		batches:  util.NewHistogram(),
	}
}

// rateInterval is the tick interval go-metrics EWMAs are calibrated for
const rateInterval = 5 * time.Second

// maxRateTicks bounds the catch up after a long idle period, the one minute
// EWMA has decayed to zero long before
const maxRateTicks = 120

// tickRate catches the remove rate up with the wall clock
func (p *Processor) tickRate() {
	p.rateMu.Lock()
	defer p.rateMu.Unlock()

	now := time.Now()
	for i := 0; now.Sub(p.lastTick) >= rateInterval; i++ {
		if i == maxRateTicks {
			p.lastTick = now
			break
		}
		p.rate.Tick()
		p.lastTick = p.lastTick.Add(rateInterval)
	}
}

// Start launches the background sweep goroutine.
// It does nothing if background sweeping is disabled, the goroutine is
// already running or the processor is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *Processor) Start() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if !p.cfg.Background || p.closed.Load() {
		return
	}
	if p.running.CompareAndSwap(false, true) {
		go p.loop()
	}
}

// loop is the background sweep loop, started by Start
func (p *Processor) loop() {
	cycle := p.cfg.cycle()
	timer := time.NewTimer(cycle)
	defer timer.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-timer.C:
			p.Sweep()
			timer.Reset(cycle)
		}
	}
}

// Sweep runs a full sweep: clocks of timed queues are advanced, idle soft
// cells relaxed and all queues drained.
func (p *Processor) Sweep() Result {
	return p.run(true)
}

// Drain only drains the queues, it is cheap enough to run before every
// collection operation.
func (p *Processor) Drain() Result {
	return p.run(false)
}

func (p *Processor) run(full bool) Result {
	if p.closed.Load() || !p.sweeping.TryLock() {
		return Result{Skipped: true}
	}
	defer func() {
		p.sweeping.Unlock()
		// Close was called during this sweep and left the queues to it
		if p.closed.Load() {
			p.closeTasks()
		}
	}()

	s := sweep{full: full}
	if full {
		s.now = p.cfg.now()
		s.idle = ref.SoftIdle(p.cfg.SoftMillisPerMiB)
	}

	start := time.Now()
	var res Result
	for _, t := range p.tasks {
		res.add(t.run(s))
	}
	elapsed := time.Since(start)

	if !full && res.Drained == 0 {
		// empty drains are too frequent to be worth recording
		return res
	}

	p.lastDuration.Store(int64(elapsed))
	p.duration.Update(int64(elapsed))
	p.sweeps.Inc(1)
	p.removed.Inc(int64(res.Removed))
	p.tickRate()
	p.rate.Update(int64(res.Removed))
	p.failures.Inc(int64(res.Failures))
	p.batches.AddSample(res.Drained)
	record(res)

	if res.Failures > 0 {
		Logger.Warningf("sweep finished with %d failures (%d removed)", res.Failures, res.Removed)
	} else if res.Drained > 0 || res.Expired > 0 {
		Logger.Debugf("sweep removed %d cells, expired %d, relaxed %d in %s", res.Removed, res.Expired, res.Relaxed, elapsed)
	}
	return res
}

// Close stops the background goroutine and closes all queues. Further sweeps
// are skipped. Close never waits for a running sweep: the queues are then
// closed by that sweep when it finishes, so expiry hooks and remove functions
// may close their own processor. Close is idempotent.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *Processor) Close() error {
	p.closeOnce.Do(func() {
		p.lifecycle.Lock()
		p.closed.Store(true)
		if p.running.CompareAndSwap(true, false) {
			close(p.stop)
		}
		p.lifecycle.Unlock()

		if p.sweeping.TryLock() {
			p.sweeping.Unlock()
			p.closeTasks()
		}
	})
	return nil
}

// closeTasks closes the queues once, the caller must not hold the sweep lock
func (p *Processor) closeTasks() {
	p.tasksOnce.Do(func() {
		for _, t := range p.tasks {
			t.close()
		}
	})
}

// Running reports whether the background goroutine is active
func (p *Processor) Running() bool { return p.running.Load() }

// Closed reports whether Close was called
func (p *Processor) Closed() bool { return p.closed.Load() }

// Registry returns the go-metrics registry of this processor
func (p *Processor) Registry() gometrics.Registry { return p.registry }

// Info returns statistics about the processor
func (p *Processor) Info() Info {
	p.tickRate()
	tasks := make([]TaskInfo, len(p.tasks))
	for i, t := range p.tasks {
		tasks[i] = TaskInfo{Name: t.Name(), Backlog: t.Backlog()}
	}

	return Info{
		Running:      p.running.Load(),
		Closed:       p.closed.Load(),
		Sweeps:       p.sweeps.Count(),
		Removed:      p.removed.Count(),
		Failures:     p.failures.Count(),
		RemoveRate:   p.rate.Rate(),
		LastDuration: time.Duration(p.lastDuration.Load()),
		MeanDuration: time.Duration(p.duration.Mean()),
		BatchMedian:  p.batches.Median(),
		BatchP99:     p.batches.Percentile(99),
		Tasks:        tasks,
	}
}
