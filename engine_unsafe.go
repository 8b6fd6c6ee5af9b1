package glitch

import (
	"unsafe"
)

func engineSize(e *Engine) uint {
	memoryUsage := int(unsafe.Sizeof(*e))
	for _, samples := range e.history.data {
		memoryUsage += cap(samples) * int(unsafe.Sizeof(float32(0)))
	}
	memoryUsage += cap(e.history.writePos) * int(unsafe.Sizeof(int(0)))
	memoryUsage += cap(e.channels) * int(unsafe.Sizeof(engineChannel{}))

	return uint(memoryUsage)
}
