// Package lcore implements the cluster-safe CPU-core registry of
// spec.md §4.1: a host-wide, named shared segment guarded by a file lock,
// so two independent processes on the same host never pin the same core.
//
// This mirrors the teacher's internal/sandbox package, which is the one
// place in the corpus that reaches for golang.org/x/sys/unix directly for
// low-level OS primitives (capability probing, namespace checks) rather
// than going through a higher-level library.
package lcore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Role records why a process claimed a core, for `list()` attribution.
type Role string

const (
	RoleScheduler Role = "scheduler"
	RoleRTCP      Role = "rtcp"
	RoleOther     Role = "other"
)

// Entry is one slot of the shared segment (spec.md §3 "LCore Registry
// Entry").
type Entry struct {
	Active   bool
	PID      int32
	Hostname [64]byte
	User     [32]byte
	Comm     [16]byte
	Role     [16]byte
}

func (e *Entry) hostname() string { return cstr(e.Hostname[:]) }
func (e *Entry) user() string     { return cstr(e.User[:]) }
func (e *Entry) comm() string     { return cstr(e.Comm[:]) }
func (e *Entry) role() string     { return cstr(e.Role[:]) }

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func setCStr(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := copy(dst, s)
	_ = n
}

const entrySize = 4 + 4 + 64 + 32 + 16 + 16 // must match the binary layout in encoding.go

var (
	ErrNoCore    = errors.New("lcore: no free core for requested socket")
	ErrBadSocket = errors.New("lcore: invalid NUMA socket")
	ErrLockFail  = errors.New("lcore: failed to acquire host-wide file lock")
)

// Registry is a handle onto the host-wide shared segment. Claim/Release/
// List/Clean all serialize on the same file lock (spec.md §4.1).
type Registry struct {
	mu          sync.Mutex // serializes this process's own goroutines
	maxLcores   int
	segPath     string
	lockPath    string
	socketOf    func(lcoreID int) int // NUMA topology lookup, injectable for tests
	crossNUMA   bool
	segFile     *os.File
	lockFile    *os.File
	mmapRegion  []byte
}

// Config configures a Registry.
type Config struct {
	MaxLcores int
	// Dir is the directory holding the shared segment + lock file,
	// typically XDG_RUNTIME_DIR. Defaults to os.TempDir().
	Dir string
	// SocketOf maps an lcore id to its NUMA socket; defaults to "socket 0
	// for everything" for single-socket hosts and tests.
	SocketOf func(lcoreID int) int
	// AllowCrossNUMA enables falling back to a non-preferred socket when
	// the preferred one is exhausted (spec.md §4.1 step (a)).
	AllowCrossNUMA bool
}

// Open attaches to (creating if necessary) the shared segment. Init
// failures here are process-fatal per spec.md §7: the caller must not
// proceed, and no cleanup of the host-wide registry is attempted.
func Open(cfg Config) (*Registry, error) {
	if cfg.MaxLcores <= 0 {
		cfg.MaxLcores = 128
	}
	dir := cfg.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	socketOf := cfg.SocketOf
	if socketOf == nil {
		socketOf = func(int) int { return 0 }
	}

	r := &Registry{
		maxLcores: cfg.MaxLcores,
		segPath:   filepath.Join(dir, "st2110go-lcore.seg"),
		lockPath:  filepath.Join(dir, "st2110go-lcore.lock"),
		socketOf:  socketOf,
		crossNUMA: cfg.AllowCrossNUMA,
	}

	lf, err := os.OpenFile(r.lockPath, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockFail, err)
	}
	r.lockFile = lf

	size := cfg.MaxLcores * entrySize
	sf, err := os.OpenFile(r.segPath, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		lf.Close()
		return nil, fmt.Errorf("lcore: open shared segment: %w", err)
	}
	if st, err := sf.Stat(); err == nil && int(st.Size()) < size {
		if err := sf.Truncate(int64(size)); err != nil {
			sf.Close()
			lf.Close()
			return nil, fmt.Errorf("lcore: size shared segment: %w", err)
		}
	}
	region, err := unix.Mmap(int(sf.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		sf.Close()
		lf.Close()
		return nil, fmt.Errorf("lcore: mmap shared segment: %w", err)
	}
	r.segFile = sf
	r.mmapRegion = region

	return r, nil
}

// Close unmaps the segment. If this process was the last to detach (no
// other entry remains active), the shared segment and lock files are
// removed (spec.md §4.1: "The last detaching process removes the shared
// segment").
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.withLock(func() error {
		anyActive := false
		for i := 0; i < r.maxLcores; i++ {
			if r.entryAt(i).Active {
				anyActive = true
				break
			}
		}
		if !anyActive {
			os.Remove(r.segPath)
			os.Remove(r.lockPath)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := unix.Munmap(r.mmapRegion); err != nil {
		return err
	}
	r.segFile.Close()
	r.lockFile.Close()
	return nil
}

func (r *Registry) withLock(fn func() error) error {
	if err := unix.Flock(int(r.lockFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("%w: %v", ErrLockFail, err)
	}
	defer unix.Flock(int(r.lockFile.Fd()), unix.LOCK_UN)
	return fn()
}

func (r *Registry) entryAt(i int) *Entry {
	off := i * entrySize
	return decodeEntry(r.mmapRegion[off : off+entrySize])
}

func (r *Registry) writeEntry(i int, e *Entry) {
	off := i * entrySize
	encodeEntry(r.mmapRegion[off:off+entrySize], e)
}

// Claim pins one free core matching preferredSocket (or any socket, if
// AllowCrossNUMA) and records ownership. Stale entries (owning PID dead
// on this host) are reclaimed in place (spec.md §4.1 step (b)).
func (r *Registry) Claim(preferredSocket int, role Role) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var claimed = -1
	err := r.withLock(func() error {
		hostname, _ := os.Hostname()
		user := currentUser()
		comm := processComm()
		pid := int32(os.Getpid())

		for pass := 0; pass < 2; pass++ {
			crossPass := pass == 1
			if crossPass && !r.crossNUMA {
				break
			}
			for i := 0; i < r.maxLcores; i++ {
				if !crossPass && r.socketOf(i) != preferredSocket {
					continue
				}
				e := r.entryAt(i)
				if e.Active {
					if !pidAlive(int(e.PID), e.hostname(), hostname) {
						e.Active = false // reclaim stale slot
					} else {
						continue
					}
				}
				var ne Entry
				ne.Active = true
				ne.PID = pid
				setCStr(ne.Hostname[:], hostname)
				setCStr(ne.User[:], user)
				setCStr(ne.Comm[:], comm)
				setCStr(ne.Role[:], string(role))
				r.writeEntry(i, &ne)
				claimed = i
				return nil
			}
		}
		return ErrNoCore
	})
	if err != nil {
		return -1, err
	}
	return claimed, nil
}

// Release returns a previously claimed core.
func (r *Registry) Release(lcoreID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lcoreID < 0 || lcoreID >= r.maxLcores {
		return ErrBadSocket
	}
	return r.withLock(func() error {
		var blank Entry
		r.writeEntry(lcoreID, &blank)
		return nil
	})
}

// ListEntry is the public attribution record returned by List.
type ListEntry struct {
	LcoreID  int
	PID      int
	Hostname string
	User     string
	Comm     string
	Role     string
}

// List enumerates all currently active cores with owner attribution.
func (r *Registry) List() ([]ListEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ListEntry
	err := r.withLock(func() error {
		for i := 0; i < r.maxLcores; i++ {
			e := r.entryAt(i)
			if !e.Active {
				continue
			}
			out = append(out, ListEntry{
				LcoreID:  i,
				PID:      int(e.PID),
				Hostname: e.hostname(),
				User:     e.user(),
				Comm:     e.comm(),
				Role:     e.role(),
			})
		}
		return nil
	})
	return out, err
}

// CleanAction selects an administrative recovery mode for Clean.
type CleanAction struct {
	DeadPIDs      bool
	SpecificLcore int // used when DeadPIDs is false
}

// Clean performs administrative recovery: reclaiming all slots whose
// owning PID is dead, or forcibly releasing one named lcore.
func (r *Registry) Clean(action CleanAction) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reclaimed := 0
	err := r.withLock(func() error {
		hostname, _ := os.Hostname()
		if !action.DeadPIDs {
			i := action.SpecificLcore
			if i < 0 || i >= r.maxLcores {
				return ErrBadSocket
			}
			var blank Entry
			r.writeEntry(i, &blank)
			reclaimed = 1
			return nil
		}
		for i := 0; i < r.maxLcores; i++ {
			e := r.entryAt(i)
			if e.Active && !pidAlive(int(e.PID), e.hostname(), hostname) {
				var blank Entry
				r.writeEntry(i, &blank)
				reclaimed++
			}
		}
		return nil
	})
	return reclaimed, err
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return fmt.Sprintf("uid%d", os.Getuid())
}

func processComm() string {
	exe, err := os.Executable()
	if err != nil {
		return "st2110go"
	}
	return filepath.Base(exe)
}

// pidAlive reports whether pid still belongs to a live process on this
// host (spec.md §4.1: "same hostname, same user, kill(pid, 0) fails").
func pidAlive(pid int, ownerHost, localHost string) bool {
	if ownerHost != "" && ownerHost != localHost {
		// Can't probe a PID on another host; assume alive to avoid
		// cross-host false reclaims.
		return true
	}
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return !errors.Is(err, unix.ESRCH)
}
