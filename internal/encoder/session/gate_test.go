package session

import (
	"sync"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestGateNilIndexAlwaysFirst(t *testing.T) {
	gate := NewGate()
	for i := 0; i < 3; i++ {
		if !gate.First(nil) {
			t.Fatal("nil stream index must always be treated as first")
		}
	}
}

func TestGateIncreasingIndexes(t *testing.T) {
	gate := NewGate()
	if !gate.First(intPtr(0)) {
		t.Fatal("first stream of the job must pass the gate")
	}
	for i := 1; i < 5; i++ {
		if gate.First(intPtr(i)) {
			t.Fatalf("stream %d must not re-trigger initialization", i)
		}
	}
}

func TestGateSmallerIndexReopens(t *testing.T) {
	gate := NewGate()
	if !gate.First(intPtr(3)) {
		t.Fatal("sentinel must admit the first defined index")
	}
	if gate.First(intPtr(4)) {
		t.Fatal("larger index admitted after gate closed")
	}
	if !gate.First(intPtr(1)) {
		t.Fatal("smaller index must reopen the gate")
	}
	if gate.First(intPtr(2)) {
		t.Fatal("index above the stored value admitted")
	}
}

func TestGateNilIndexDoesNotDisturbState(t *testing.T) {
	gate := NewGate()
	if !gate.First(intPtr(0)) {
		t.Fatal("first stream rejected")
	}
	if !gate.First(nil) {
		t.Fatal("nil index rejected")
	}
	if gate.First(intPtr(1)) {
		t.Fatal("nil index reset the stored value")
	}
}

func TestRegistryScopesGatesPerJob(t *testing.T) {
	registry := NewRegistry()

	if !registry.Gate("job-a").First(intPtr(0)) {
		t.Fatal("job-a stream 0 rejected")
	}
	// A second job must not be affected by job-a's state.
	if !registry.Gate("job-b").First(intPtr(0)) {
		t.Fatal("job-b stream 0 rejected; gate state leaked across jobs")
	}
	if registry.Gate("job-a").First(intPtr(1)) {
		t.Fatal("job-a stream 1 admitted after initialization")
	}

	if registry.Active() != 2 {
		t.Fatalf("active jobs = %d, want 2", registry.Active())
	}
	registry.Release("job-a")
	if registry.Active() != 1 {
		t.Fatalf("active jobs after release = %d, want 1", registry.Active())
	}

	// A re-created job starts from the sentinel again.
	if !registry.Gate("job-a").First(intPtr(5)) {
		t.Fatal("released job did not reset to the sentinel")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			jobID := "job"
			if n%2 == 0 {
				jobID = "other"
			}
			registry.Gate(jobID).First(intPtr(n))
		}(i)
	}
	wg.Wait()
	if registry.Active() != 2 {
		t.Fatalf("active jobs = %d, want 2", registry.Active())
	}
}
