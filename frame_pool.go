package websocket

import "sync"

var framePool = sync.Pool{
	New: func() interface{} { return newFrame() },
}

// acquireFrame returns a zeroed Frame from the pool, to be returned to the
// pool with releaseFrame once it has been written or consumed.
func acquireFrame() *Frame {
	return framePool.Get().(*Frame)
}

func releaseFrame(f *Frame) {
	f.reset()
	framePool.Put(f)
}
