package container

import "sync"

// openPaths tracks absolute paths of live containers in this process.
var openPaths = struct {
	sync.Mutex
	m map[string]struct{}
}{m: make(map[string]struct{})}

func acquirePath(abs string) bool {
	openPaths.Lock()
	defer openPaths.Unlock()
	if _, ok := openPaths.m[abs]; ok {
		return false
	}
	openPaths.m[abs] = struct{}{}
	return true
}

func releasePath(abs string) {
	openPaths.Lock()
	defer openPaths.Unlock()
	delete(openPaths.m, abs)
}
