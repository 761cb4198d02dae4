package record

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/robert-malhotra/go-arf/arf"
	"github.com/robert-malhotra/go-arf/logger"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateIdle State = iota
	StateOpen
	StateFlushing
	StateRotatingClosed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateFlushing:
		return "flushing"
	case StateRotatingClosed:
		return "rotating"
	case StateClosed:
		return "closed"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

var (
	ErrInvalidState   = errors.New("record: invalid session state")
	ErrInvalidChannel = errors.New("record: invalid channel")
)

// BitDepth is the sample width of continuous datasets.
const BitDepth = 16

// Channel describes one input channel of a registered processor.
type Channel struct {
	Processor  int
	BitVolts   float32
	SampleRate float32
	// Record selects whether the channel is written.
	Record bool
}

// PartState identifies the part being written.
type PartState struct {
	Index int
	// Samples counts samples per channel flushed since the part started.
	Samples uint64
}

type processor struct {
	id   int
	rate float32
}

type channelState struct {
	Channel
	file   int // index into Session.files, -1 when not recorded
	column int
	buf    []int16
}

// Session records one experiment at a time into sets of ARF files.
type Session struct {
	cfg     Config
	log     logger.Logger
	metrics *Metrics
	now     func() time.Time
	arfOpts []arf.Option

	// bufMu guards the channel buffers, rotMu the open file set. Lock order
	// is bufMu then rotMu; state and registrations change with both held.
	bufMu sync.Mutex
	rotMu sync.Mutex

	state      State
	processors []processor
	channels   []*channelState

	root        string
	experiment  int
	recording   int
	part        PartState
	flushes     int
	startSample uint64

	files  []*arf.ContinuousFile
	events *arf.EventLog
	spikes *arf.SpikeLog
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the collectors the session updates.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock sets the clock used for recording start times.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithFileOptions adds options applied to every ARF file the session opens.
func WithFileOptions(opts ...arf.Option) Option {
	return func(s *Session) { s.arfOpts = append(s.arfOpts, opts...) }
}

// New returns an idle session.
func New(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg, log: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	fileOpts := []arf.Option{
		arf.WithLogger(s.log),
		arf.WithContainerOptions(cfg.containerOptions()...),
		arf.WithArrayOptions(cfg.arrayOptions()...),
	}
	s.arfOpts = append(fileOpts, s.arfOpts...)
	s.events = arf.NewEventLog(s.arfOpts...)
	s.spikes = arf.NewSpikeLog(s.arfOpts...)
	return s, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.rotMu.Lock()
	defer s.rotMu.Unlock()
	return s.state
}

// Part returns the part being written.
func (s *Session) Part() PartState {
	s.rotMu.Lock()
	defer s.rotMu.Unlock()
	return s.part
}

// Files returns the paths of the open files: continuous files first, then
// the events and spikes files.
func (s *Session) Files() []string {
	s.rotMu.Lock()
	defer s.rotMu.Unlock()
	if s.state != StateOpen {
		return nil
	}
	paths := make([]string, 0, len(s.files)+2)
	for _, f := range s.files {
		paths = append(paths, f.Path())
	}
	return append(paths, s.events.Path(), s.spikes.Path())
}

func (s *Session) lockAll() func() {
	s.bufMu.Lock()
	s.rotMu.Lock()
	return func() {
		s.rotMu.Unlock()
		s.bufMu.Unlock()
	}
}

func (s *Session) configurable() error {
	if s.state != StateIdle && s.state != StateClosed {
		return fmt.Errorf("%w: cannot change registrations while %s", ErrInvalidState, s.state)
	}
	return nil
}

// RegisterProcessor adds a data source with the given id, used in its
// continuous file name, and sample rate.
func (s *Session) RegisterProcessor(id int, sampleRate float32) error {
	defer s.lockAll()()
	if err := s.configurable(); err != nil {
		return err
	}
	if !(sampleRate > 0) {
		return fmt.Errorf("%w: processor %d sample rate %v", ErrInvalidChannel, id, sampleRate)
	}
	for _, p := range s.processors {
		if p.id == id {
			return fmt.Errorf("%w: processor %d registered twice", ErrInvalidChannel, id)
		}
	}
	s.processors = append(s.processors, processor{id: id, rate: sampleRate})
	return nil
}

// AddChannel adds an input channel and returns its index for
// SubmitSamples.
func (s *Session) AddChannel(ch Channel) (int, error) {
	defer s.lockAll()()
	if err := s.configurable(); err != nil {
		return 0, err
	}
	if s.processorIndex(ch.Processor) < 0 {
		return 0, fmt.Errorf("%w: unknown processor %d", ErrInvalidChannel, ch.Processor)
	}
	if ch.Record && !(ch.BitVolts > 0) {
		return 0, fmt.Errorf("%w: bit volts %v", ErrInvalidChannel, ch.BitVolts)
	}
	s.channels = append(s.channels, &channelState{Channel: ch, file: -1})
	return len(s.channels) - 1, nil
}

// AddSpikeGroup adds a spike channel group and returns its index for
// SubmitSpike.
func (s *Session) AddSpikeGroup(channels int) (int, error) {
	defer s.lockAll()()
	if err := s.configurable(); err != nil {
		return 0, err
	}
	return s.spikes.RegisterChannelGroup(channels)
}

func (s *Session) processorIndex(id int) int {
	for i, p := range s.processors {
		if p.id == id {
			return i
		}
	}
	return -1
}

// mainRate is the sample rate event timestamps are expressed in.
func (s *Session) mainRate() float32 {
	if len(s.processors) == 0 {
		return 0
	}
	return s.processors[0].rate
}

func (s *Session) multiRate() bool {
	var rate float32
	for _, ch := range s.channels {
		if !ch.Record {
			continue
		}
		if rate != 0 && ch.SampleRate != rate {
			return true
		}
		rate = ch.SampleRate
	}
	return false
}

// basePath returns <root>/experiment<N>, with _prt<P> appended when samples
// are batched.
func (s *Session) basePath() string {
	name := "experiment" + strconv.Itoa(s.experiment)
	if s.cfg.BatchSize > 0 {
		name += "_prt" + strconv.Itoa(s.part.Index)
	}
	return filepath.Join(s.root, name)
}

// OpenSection opens the file set for a recording and starts accepting
// samples, events and spikes. On failure every file opened so far is closed
// and the session stays in its previous state.
func (s *Session) OpenSection(root string, experiment, recording int) error {
	defer s.lockAll()()
	if s.state != StateIdle && s.state != StateClosed {
		return fmt.Errorf("%w: open section while %s", ErrInvalidState, s.state)
	}
	if len(s.events.Types()) == 0 {
		if err := s.events.RegisterDefaults(); err != nil {
			return err
		}
	}
	s.root, s.experiment, s.recording = root, experiment, recording
	s.part.Samples, s.flushes, s.startSample = 0, 0, 0
	if err := s.openFiles(); err != nil {
		return err
	}
	for _, ch := range s.channels {
		ch.buf = nil
		if ch.file >= 0 && s.cfg.BatchSize > 0 {
			ch.buf = make([]int16, 0, 3*s.cfg.BatchSize)
		}
	}
	s.state = StateOpen
	s.metrics.Part.Set(float64(s.part.Index))
	s.log.Info("section opened", "base", s.basePath(), "experiment", experiment, "recording", recording,
		"files", len(s.files)+2)
	return nil
}

// openFiles opens the continuous files of every processor with recorded
// channels, then the events and spikes files.
func (s *Session) openFiles() error {
	base := s.basePath()
	var files []*arf.ContinuousFile
	fail := func(err error) error {
		for _, f := range files {
			err = errors.Join(err, f.Close())
		}
		return errors.Join(err, s.events.Close(), s.spikes.Close())
	}

	for _, ch := range s.channels {
		ch.file = -1
	}
	start := s.now()
	multi := s.multiRate()
	for _, p := range s.processors {
		info := &arf.RecordingInfo{
			Name:            arf.DefaultRecordingName(s.recording),
			StartTime:       start,
			StartSample:     uint32(s.startSample),
			BitDepth:        BitDepth,
			SampleRate:      p.rate,
			MultiSampleRate: multi,
		}
		var members []*channelState
		for _, ch := range s.channels {
			if ch.Record && ch.Processor == p.id {
				ch.column = len(info.BitVolts)
				info.BitVolts = append(info.BitVolts, ch.BitVolts)
				info.SampleRates = append(info.SampleRates, ch.SampleRate)
				members = append(members, ch)
			}
		}
		if len(members) == 0 {
			continue
		}
		f, err := arf.OpenContinuous(base, p.id, s.arfOpts...)
		if err != nil {
			return fail(err)
		}
		files = append(files, f)
		if err := f.StartRecording(s.recording, info); err != nil {
			return fail(err)
		}
		for _, ch := range members {
			ch.file = len(files) - 1
		}
	}
	if err := s.events.Open(base, s.recording); err != nil {
		return fail(err)
	}
	if err := s.spikes.Open(base, s.recording); err != nil {
		return fail(err)
	}
	s.files = files
	return nil
}

func (s *Session) closeFiles() error {
	var err error
	for _, f := range s.files {
		err = errors.Join(err, f.Close())
	}
	s.files = nil
	return errors.Join(err, s.events.Close(), s.spikes.Close())
}

// SubmitSamples converts samples of one channel to fixed point and queues
// them. Once every recorded channel holds a full batch the batch is written;
// with a batch size of 0 samples are written immediately. Samples of
// channels that are not recorded are ignored.
func (s *Session) SubmitSamples(channel int, samples []float32) error {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	if s.state != StateOpen {
		return fmt.Errorf("%w: submit samples while %s", ErrInvalidState, s.state)
	}
	if channel < 0 || channel >= len(s.channels) {
		return fmt.Errorf("%w: channel %d of %d", arf.ErrIndexOutOfRange, channel, len(s.channels))
	}
	ch := s.channels[channel]
	if ch.file < 0 || len(samples) == 0 {
		return nil
	}

	if s.cfg.BatchSize == 0 {
		scaled := ToFixedPoint(nil, samples, ch.BitVolts)
		s.rotMu.Lock()
		defer s.rotMu.Unlock()
		if err := s.writeChannel(channel, ch, scaled); err != nil {
			return err
		}
		s.metrics.SamplesWritten.Add(float64(len(scaled)))
		return nil
	}

	ch.buf = ToFixedPoint(ch.buf, samples, ch.BitVolts)
	s.metrics.SamplesBuffered.Add(float64(len(samples)))
	for s.batchReady() {
		if err := s.flush(); err != nil {
			return err
		}
	}
	return nil
}

// writeChannel appends samples to the dataset of channel i. The caller
// holds rotMu.
func (s *Session) writeChannel(i int, ch *channelState, samples []int16) error {
	f := s.files[ch.file]
	if err := f.WriteChannel(ch.column, samples); err != nil {
		dataset := arf.ChannelPath(s.recording, ch.column)
		s.metrics.WriteErrors.WithLabelValues(arf.Continuous.String()).Inc()
		s.log.Error("sample write failed", "channel", i, "file", f.Path(), "dataset", dataset, "samples", len(samples), "error", err)
		return fmt.Errorf("channel %d (%s:%s): %w", i, f.Path(), dataset, err)
	}
	return nil
}

// batchReady reports whether every recorded channel holds a full batch.
func (s *Session) batchReady() bool {
	if s.state != StateOpen {
		return false
	}
	recorded := false
	for _, ch := range s.channels {
		if ch.file < 0 {
			continue
		}
		if len(ch.buf) < s.cfg.BatchSize {
			return false
		}
		recorded = true
	}
	return recorded
}

// flush writes one batch per channel and rotates when the part is full. A
// channel whose write fails keeps its samples. The caller holds bufMu.
func (s *Session) flush() error {
	s.rotMu.Lock()
	defer s.rotMu.Unlock()

	started := time.Now()
	batch := s.cfg.BatchSize
	s.state = StateFlushing
	var errs []error
	written := 0
	for i, ch := range s.channels {
		if ch.file < 0 {
			continue
		}
		if err := s.writeChannel(i, ch, ch.buf[:batch]); err != nil {
			errs = append(errs, err)
			continue
		}
		ch.buf = ch.buf[:copy(ch.buf, ch.buf[batch:])]
		written += batch
	}
	if written > 0 {
		s.part.Samples += uint64(batch)
		s.flushes++
	}

	if written > 0 && s.cfg.RotateEvery > 0 && s.flushes >= s.cfg.RotateEvery {
		if err := s.rotate(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.state == StateFlushing {
		s.state = StateOpen
	}
	s.metrics.RecordFlush(written, time.Since(started))
	return errors.Join(errs...)
}

// rotate closes the file set and opens the next part at the same
// identifiers. Buffered samples carry over. If the new part cannot be opened
// the session ends up closed.
func (s *Session) rotate() error {
	s.state = StateRotatingClosed
	closeErr := s.closeFiles()
	if closeErr != nil {
		s.log.Error("closing part failed", "part", s.part.Index, "error", closeErr)
	}
	s.startSample += s.part.Samples
	s.part = PartState{Index: s.part.Index + 1}
	s.flushes = 0

	if err := s.openFiles(); err != nil {
		s.state = StateClosed
		s.dropBuffers()
		s.log.Error("opening part failed", "part", s.part.Index, "error", err)
		return errors.Join(closeErr, fmt.Errorf("rotating to part %d: %w", s.part.Index, err))
	}
	s.state = StateOpen
	s.metrics.Rotations.Inc()
	s.metrics.Part.Set(float64(s.part.Index))
	s.log.Info("rotated", "part", s.part.Index, "base", s.basePath())
	return closeErr
}

// dropBuffers discards every buffered sample and returns how many there
// were.
func (s *Session) dropBuffers() int {
	dropped := 0
	for _, ch := range s.channels {
		dropped += len(ch.buf)
		ch.buf = nil
	}
	s.metrics.SamplesBuffered.Sub(float64(dropped))
	s.metrics.SamplesDropped.Add(float64(dropped))
	return dropped
}

// CloseSection closes the file set. Samples short of a full batch are
// discarded. Closing a closed session is a no-op.
func (s *Session) CloseSection() error {
	defer s.lockAll()()
	switch s.state {
	case StateClosed:
		return nil
	case StateOpen:
	default:
		return fmt.Errorf("%w: close section while %s", ErrInvalidState, s.state)
	}
	return s.closeSection()
}

func (s *Session) closeSection() error {
	if dropped := s.dropBuffers(); dropped > 0 {
		s.log.Info("partial batches dropped", "samples", dropped)
	}
	err := s.closeFiles()
	s.state = StateClosed
	s.log.Info("section closed", "experiment", s.experiment, "recording", s.recording, "part", s.part.Index)
	return err
}

// Reset closes any open section and forgets every processor, channel, spike
// group and event type, returning the session to idle with part 0.
func (s *Session) Reset() error {
	defer s.lockAll()()
	var err error
	if s.state == StateOpen {
		err = s.closeSection()
	}
	err = errors.Join(err, s.events.Reset(), s.spikes.Reset())
	s.processors, s.channels = nil, nil
	s.part, s.flushes, s.startSample = PartState{}, 0, 0
	s.state = StateIdle
	s.metrics.Part.Set(0)
	return err
}
