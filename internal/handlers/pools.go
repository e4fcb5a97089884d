package handlers

import (
	"bytes"
	"sync"
)

// requestBufferPool provides reusable buffers for reading request
// bodies, which keeps GC pressure down under sustained load.
var requestBufferPool = sync.Pool{
	New: func() interface{} {
		// Login requests are tiny, 1KB covers them with headroom.
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

func getRequestBuffer() *bytes.Buffer {
	buf, ok := requestBufferPool.Get().(*bytes.Buffer)
	if !ok {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	}
	return buf
}

func putRequestBuffer(buf *bytes.Buffer) {
	buf.Reset()
	requestBufferPool.Put(buf)
}

// responseBufferPool provides reusable buffers for JSON encoding so a
// failed encode never leaves a half-written HTTP response.
var responseBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

func getResponseBuffer() *bytes.Buffer {
	buf, ok := responseBufferPool.Get().(*bytes.Buffer)
	if !ok {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	}
	return buf
}

func putResponseBuffer(buf *bytes.Buffer) {
	buf.Reset()
	responseBufferPool.Put(buf)
}
