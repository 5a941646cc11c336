package replay

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"
)

// PlaySpeeds are the playback rates cycled by TogglePlaySpeed.
var PlaySpeeds = []float64{1, 2, 5, 10}

const (
	testFrameCount     = 100
	testFirstTimestamp = 1717988760000
	testFrameStepMs    = 100
)

// TestMode replaces the dataset with synthetic frames at a fixed location. CameraOffset is
// applied on the right of every model matrix.
type TestMode struct {
	Latitude     float64
	Longitude    float64
	CameraOffset mgl64.Mat4
}

// Player paces records in real time using their timestamps. It is driven by repeated calls to
// Next, typically once per frame tick.
type Player struct {
	dir    string
	test   *TestMode
	clock  clock.Clock
	logger golog.Logger

	mu       sync.Mutex
	dataset  *Dataset
	idx      int
	progress float64
	speedIdx int
	playing  bool
	pending  *Record
	deadline time.Time
	finished bool
}

// NewPlayer returns a player for the dataset in dir. A non-nil test switches to synthetic frames
// and dir is ignored.
func NewPlayer(dir string, test *TestMode, clk clock.Clock, logger golog.Logger) *Player {
	if clk == nil {
		clk = clock.New()
	}
	if test != nil && test.CameraOffset == (mgl64.Mat4{}) {
		tm := *test
		tm.CameraOffset = mgl64.Ident4()
		test = &tm
	}
	return &Player{dir: dir, test: test, clock: clk, logger: logger}
}

// Play loads the dataset if needed and starts playback.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dataset == nil {
		if p.test != nil {
			p.dataset = syntheticDataset(*p.test)
		} else {
			ds, err := LoadDataset(p.dir, p.logger)
			if err != nil {
				p.logger.Errorw("failed to load dataset", "error", err)
				return err
			}
			p.dataset = ds
		}
	}
	p.playing = true
	return nil
}

// Pause stops playback; Play resumes from the same record.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.pending = nil
}

// IsPlaying reports whether playback is running.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Finished reports whether playback has reached the last record.
func (p *Player) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// Dataset returns the loaded dataset, or nil.
func (p *Player) Dataset() *Dataset {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dataset
}

// Next returns the record due at the current time, if any. The gap between two emissions equals
// the timestamp difference of the records divided by the play speed.
func (p *Player) Next() (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.dataset == nil || len(p.dataset.Records) == 0 {
		return Record{}, false
	}

	now := p.clock.Now()
	if p.pending == nil {
		curr := p.readCurrent()
		lastIdx := p.idx
		next := p.readNext()
		if p.test != nil {
			curr.Model = curr.Model.Mul4(p.test.CameraOffset)
		}
		intervalMs := float64(next.Timestamp-curr.Timestamp) / PlaySpeeds[p.speedIdx]
		p.pending = &curr
		p.deadline = now.Add(time.Duration(intervalMs * float64(time.Millisecond)))
		p.finished = lastIdx == p.idx
	}
	if now.Before(p.deadline) {
		return Record{}, false
	}
	rec := *p.pending
	p.pending = nil
	p.updateProgress()
	return rec, true
}

func (p *Player) readCurrent() Record {
	if p.idx >= len(p.dataset.Records) {
		p.idx = len(p.dataset.Records) - 1
	}
	return p.dataset.Records[p.idx]
}

func (p *Player) readNext() Record {
	if p.idx+1 < len(p.dataset.Records) {
		p.idx++
	}
	return p.readCurrent()
}

func (p *Player) updateProgress() {
	p.progress = float64(p.idx) / float64(len(p.dataset.Records))
}

// SetProgress seeks to a fraction of the dataset in [0, 1].
func (p *Player) SetProgress(progress float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	progress = math.Max(0, math.Min(1, progress))
	p.progress = progress
	p.pending = nil
	p.finished = false
	if p.dataset == nil {
		return
	}
	p.idx = int(math.Floor(float64(len(p.dataset.Records)) * progress))
	if p.idx >= len(p.dataset.Records) {
		p.idx = len(p.dataset.Records) - 1
	}
}

// Progress returns the fraction of the dataset played.
func (p *Player) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// FrameIndex returns the index of the next record to be read.
func (p *Player) FrameIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx
}

// PlaySpeed returns the current playback rate.
func (p *Player) PlaySpeed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PlaySpeeds[p.speedIdx]
}

// TogglePlaySpeed advances to the next playback rate, wrapping around.
func (p *Player) TogglePlaySpeed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speedIdx = (p.speedIdx + 1) % len(PlaySpeeds)
	return PlaySpeeds[p.speedIdx]
}

// TotalSeconds returns the time spanned by the dataset.
func (p *Player) TotalSeconds() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dataset == nil || len(p.dataset.Records) == 0 {
		p.logger.Error("dataset is not loaded yet")
		return 0, ErrDatasetNotLoaded
	}
	first := p.dataset.Records[0]
	last := p.dataset.Records[len(p.dataset.Records)-1]
	return float64(last.Timestamp-first.Timestamp) * 0.001, nil
}

func syntheticDataset(tm TestMode) *Dataset {
	records := make([]Record, 0, testFrameCount)
	for i := 0; i < testFrameCount; i++ {
		rec := DefaultRecord()
		rec.Timestamp = testFirstTimestamp + int64(testFrameStepMs*i)
		rec.Latitude = tm.Latitude
		rec.Longitude = tm.Longitude
		records = append(records, rec)
	}
	return &Dataset{Records: records}
}
