package groups

import (
	"slices"
	"strconv"
	"sync"
)

// keyedMutex 按ID加锁，不用的条目会被回收
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*keyedEntry)}
}

func (k *keyedMutex) lock(id int64) {
	k.mu.Lock()
	entry, ok := k.locks[id]
	if !ok {
		entry = &keyedEntry{}
		k.locks[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

func (k *keyedMutex) unlock(id int64) {
	k.mu.Lock()
	entry := k.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, id)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}

// lockAll 按升序锁定全部ID，返回释放函数
func (k *keyedMutex) lockAll(ids ...int64) func() {
	ordered := sortedUnique(ids)
	for _, id := range ordered {
		k.lock(id)
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			k.unlock(ordered[i])
		}
	}
}

// sortedUnique 去重并升序排列
func sortedUnique(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func userLockKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

func groupLockKey(id int64) string {
	return "group:" + strconv.FormatInt(id, 10)
}
