package supervisor

import (
	"os"
	"testing"
	"time"
)

type fakeStat struct {
	mode time.Time
	err  error
}

func statFunc(states map[string]fakeStat) func(string) (os.FileInfo, error) {
	return func(path string) (os.FileInfo, error) {
		st, ok := states[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		if st.err != nil {
			return nil, st.err
		}
		return fakeFileInfo{modTime: st.mode}, nil
	}
}

type fakeFileInfo struct {
	modTime time.Time
	os.FileInfo
}

func (f fakeFileInfo) ModTime() time.Time { return f.modTime }

func TestSupervise_FinishedChildReturnsImmediately(t *testing.T) {
	launch := time.Unix(0, 0)
	clock := launch
	child := Child{
		Poll:      func() bool { return true },
		Wait:      func() (int, error) { return 0, nil },
		Terminate: func() error { return nil },
	}
	res, err := Supervise(child, Config{
		PollTime:   time.Second,
		OutputPath: "/work/NaCl.castep",
		LaunchTime: launch,
		Now:        func() time.Time { return clock },
		Stat:       statFunc(nil),
		Sleep:      func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("Supervise: %v", err)
	}
	if res.Outcome != Finished || res.ExitCode != 0 {
		t.Fatalf("res = %+v, want Finished/0", res)
	}
}

// TestSupervise_WalltimeExpires reproduces the 60s/5s polling scenario: the
// child never finishes and the walltime deadline is reached after the 7th
// poll (elapsed 35s, remaining 25s <= 5*polltime=25s).
func TestSupervise_WalltimeExpires(t *testing.T) {
	launch := time.Unix(0, 0)
	clock := launch
	pollTime := 5 * time.Second
	polls := 0

	child := Child{
		Poll:      func() bool { return false },
		Wait:      func() (int, error) { return 0, nil },
		Terminate: func() error { return nil },
	}
	res, err := Supervise(child, Config{
		PollTime:   pollTime,
		OutputPath: "/work/NaCl.castep",
		LaunchTime: launch,
		Deadline:   Deadline{Start: launch, Max: 60 * time.Second},
		Now:        func() time.Time { return clock },
		Stat:       statFunc(map[string]fakeStat{"/work/NaCl.castep": {mode: launch}}),
		Sleep: func(d time.Duration) {
			polls++
			clock = clock.Add(d)
		},
	})
	if err != nil {
		t.Fatalf("Supervise: %v", err)
	}
	if res.Outcome != WalltimeExpired {
		t.Fatalf("Outcome = %v, want WalltimeExpired", res.Outcome)
	}
	if polls != 7 {
		t.Errorf("polls = %d, want 7 (elapsed 35s)", polls)
	}
}

func TestSupervise_StaleOutputFile(t *testing.T) {
	launch := time.Unix(100, 0)
	clock := launch
	child := Child{
		Poll:      func() bool { return false },
		Wait:      func() (int, error) { return 0, nil },
		Terminate: func() error { return nil },
	}
	res, err := Supervise(child, Config{
		PollTime:   time.Second,
		OutputPath: "/work/NaCl.castep",
		LaunchTime: launch,
		Now:        func() time.Time { return clock },
		Stat:       statFunc(map[string]fakeStat{"/work/NaCl.castep": {mode: launch.Add(-time.Hour)}}),
		Sleep:      func(d time.Duration) { clock = clock.Add(d) },
	})
	if err != nil {
		t.Fatalf("Supervise: %v", err)
	}
	if res.Outcome != StaleOutput {
		t.Fatalf("Outcome = %v, want StaleOutput", res.Outcome)
	}
}

func TestSupervise_OutputMissingAfterGracePeriod(t *testing.T) {
	launch := time.Unix(0, 0)
	clock := launch
	child := Child{
		Poll:      func() bool { return false },
		Wait:      func() (int, error) { return 0, nil },
		Terminate: func() error { return nil },
	}
	res, err := Supervise(child, Config{
		PollTime:   time.Second,
		OutputPath: "/work/NaCl.castep",
		LaunchTime: launch,
		Now:        func() time.Time { return clock },
		Stat:       statFunc(nil), // never appears
		Sleep:      func(d time.Duration) { clock = clock.Add(d) },
	})
	if err != nil {
		t.Fatalf("Supervise: %v", err)
	}
	if res.Outcome != OutputMissing {
		t.Fatalf("Outcome = %v, want OutputMissing", res.Outcome)
	}
}

func TestSupervise_KillSwitchFileObserved(t *testing.T) {
	launch := time.Unix(0, 0)
	clock := launch
	child := Child{
		Poll:      func() bool { return false },
		Wait:      func() (int, error) { return 0, nil },
		Terminate: func() error { return nil },
	}
	res, err := Supervise(child, Config{
		PollTime:   time.Second,
		OutputPath: "/work/NaCl.castep",
		KillPath:   "/work/NaCl.kill",
		LaunchTime: launch,
		Now:        func() time.Time { return clock },
		Stat: statFunc(map[string]fakeStat{
			"/work/NaCl.castep": {mode: launch},
			"/work/NaCl.kill":   {mode: launch},
		}),
		Sleep: func(d time.Duration) { clock = clock.Add(d) },
	})
	if err != nil {
		t.Fatalf("Supervise: %v", err)
	}
	if res.Outcome != KillSwitch {
		t.Fatalf("Outcome = %v, want KillSwitch", res.Outcome)
	}
}

func TestSupervise_RejectsPolltimeTooCloseToWalltime(t *testing.T) {
	_, err := Supervise(Child{Poll: func() bool { return true }, Wait: func() (int, error) { return 0, nil }}, Config{
		PollTime: 20 * time.Second,
		Deadline: Deadline{Max: 60 * time.Second}, // polltime >= max/5
	})
	if err != ErrInvalidPolltime {
		t.Fatalf("err = %v, want ErrInvalidPolltime", err)
	}
}
