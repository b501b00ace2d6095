package control

// RunningAverage is the mean of the last n values added. The first value
// added after creation or Deinit fills the whole window, so the average
// starts out at that value instead of being pulled towards zero.
type RunningAverage struct {
	values      []int64
	pos         int
	initialized bool
}

func NewRunningAverage(n int) *RunningAverage {
	if n < 1 {
		n = 1
	}
	return &RunningAverage{values: make([]int64, n)}
}

func (a *RunningAverage) Add(v int64) {
	if !a.initialized {
		for i := range a.values {
			a.values[i] = v
		}
		a.initialized = true
		return
	}
	a.values[a.pos] = v
	a.pos = (a.pos + 1) % len(a.values)
}

// Average truncates towards zero.
func (a *RunningAverage) Average() int64 {
	var sum int64
	for _, v := range a.values {
		sum += v
	}
	return sum / int64(len(a.values))
}

// Deinit makes the next Add refill the window. The values are kept until then.
func (a *RunningAverage) Deinit() {
	a.initialized = false
}

func (a *RunningAverage) Initialized() bool {
	return a.initialized
}
