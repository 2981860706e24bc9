package cgroup

import "testing"

func TestParse_empty(t *testing.T) {
	groups, err := Parse("", V2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if groups != nil {
		t.Errorf("groups = %v, want nil", groups)
	}
}

func TestParse_explicitControllerPairs(t *testing.T) {
	groups, err := Parse("cpu:build,memory:build", V1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Group{{Controller: "cpu", Name: "build"}, {Controller: "memory", Name: "build"}}
	if len(groups) != len(want) {
		t.Fatalf("groups = %+v, want %+v", groups, want)
	}

	for i := range want {
		if groups[i] != want[i] {
			t.Errorf("groups[%d] = %+v, want %+v", i, groups[i], want[i])
		}
	}
}

func TestParse_bareNameV2UnifiedHierarchy(t *testing.T) {
	groups, err := Parse("build", V2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(groups) != 1 || groups[0].Name != "build" || groups[0].Controller != "" {
		t.Errorf("groups = %+v", groups)
	}
}

func TestGroup_pathAndProcsFile(t *testing.T) {
	g := Group{Controller: "cpu", Name: "build"}

	if got, want := g.path(V1), "/sys/fs/cgroup/cpu/build"; got != want {
		t.Errorf("path(V1) = %q, want %q", got, want)
	}

	if got, want := g.procsFile(V1), "/sys/fs/cgroup/cpu/build/tasks"; got != want {
		t.Errorf("procsFile(V1) = %q, want %q", got, want)
	}

	unified := Group{Name: "build"}
	if got, want := unified.path(V2), "/sys/fs/cgroup/build"; got != want {
		t.Errorf("path(V2) = %q, want %q", got, want)
	}

	if got, want := unified.procsFile(V2), "/sys/fs/cgroup/build/cgroup.procs"; got != want {
		t.Errorf("procsFile(V2) = %q, want %q", got, want)
	}
}
