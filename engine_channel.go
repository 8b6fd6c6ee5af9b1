package glitch

const (
	// A stopped tape comes back once its speed falls below this level.
	tapeStopThreshold = 0.01

	// A CD skip starts with a short chirp: a second voice
	// that scans the history much faster than the playback.
	chirpLength = 75
	chirpRate   = 7
)

// Random loop hold periods, alternating between channels.
var loopPeriods = [...]int{3308, 4410}

type engineChannel struct {
	id int

	pos float64

	speed Line
	stop  Line

	mode SourceMode
	roll float64

	loop     randomLoop
	skipper  segmentStepper
	repeater segmentStepper

	skipRegion    region
	skipCounter   int
	chirpPos      float64
	repeatRegion  region
	repeatCounter int
}

func (ch *engineChannel) Reset(bufferLength int) {
	ch.pos = 0
	ch.speed.Reset(1)
	ch.stop.Reset(1)
	ch.mode = SourceFree
	ch.roll = 1
	ch.setBufferLength(bufferLength)
}

func (ch *engineChannel) setBufferLength(n int) {
	ch.loop.setBufferLength(n)
	ch.skipper.setBufferLength(n)
	ch.repeater.setBufferLength(n)
	ch.pos = wrap(ch.pos, float64(n))
	ch.skipCounter = 0
	ch.repeatCounter = 0
}

func (ch *engineChannel) setMode(m SourceMode) bool {
	if ch.mode == m {
		return false
	}
	ch.mode = m
	switch m {
	case SourceSkip:
		ch.skipCounter = 0
	case SourceRepeat:
		ch.repeatCounter = 0
	}
	return true
}

// nextSample produces one output sample and moves the channel cursor.
// The sample is always read before the cursor is advanced.
func (ch *engineChannel) nextSample(buf *ringBuffer, direction, recoverSamples float64) float32 {
	length := float64(buf.usedLength)

	stop := ch.stop.Render()
	if stop < tapeStopThreshold {
		ch.stop.SetRampDuration(recoverSamples)
		ch.stop.SetDestination(1)
	}
	rate := ch.speed.Render() * direction * stop

	switch ch.mode {
	case SourceLoop:
		r := ch.loop.advance()
		v := buf.read(ch.id, ch.pos)
		ch.pos = wrap(ch.pos+rate, length)
		if !r.contains(ch.pos) {
			if rate < 0 {
				ch.pos = float64(r.end() - 1)
			} else {
				ch.pos = float64(r.start)
			}
		}
		return v

	case SourceSkip:
		if ch.skipCounter == 0 {
			ch.skipRegion = ch.skipper.advance()
			ch.pos = float64(ch.skipRegion.start)
			ch.chirpPos = ch.pos
		}
		v := buf.read(ch.id, ch.pos)
		if ch.skipCounter < chirpLength {
			v += buf.read(ch.id, ch.chirpPos)
			ch.chirpPos = wrap(ch.chirpPos+chirpRate, length)
		}
		ch.pos = wrap(ch.pos+rate, length)
		ch.skipCounter++
		if ch.skipCounter >= ch.skipRegion.length {
			ch.skipCounter = 0
		}
		return v

	case SourceRepeat:
		if ch.repeatCounter == 0 {
			ch.repeatRegion = ch.repeater.advance()
			ch.pos = float64(ch.repeatRegion.start)
		}
		v := buf.read(ch.id, ch.pos)
		ch.pos = wrap(ch.pos+rate, length)
		ch.repeatCounter++
		if ch.repeatCounter >= ch.repeatRegion.length {
			ch.repeatCounter = 0
		}
		return v

	default:
		v := buf.read(ch.id, ch.pos)
		ch.pos = wrap(ch.pos+rate, length)
		return v
	}
}
