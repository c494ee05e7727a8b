package prompts

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name        string
		id          PromptID
		data        any
		contains    []string
		notContains []string
	}{
		{
			name: "architect on empty project",
			id:   Architect,
			data: ArchitectData{Goal: "add a /hello endpoint", Stack: "node"},
			contains: []string{
				"add a /hello endpoint",
				"Stack: node",
				"The project is empty.",
				"## Verification",
			},
			notContains: []string{"infrastructure problem"},
		},
		{
			name: "architect after infrastructure failure",
			id:   Architect,
			data: ArchitectData{
				Goal:      "add a /hello endpoint",
				Files:     []string{"package.json", "server.js"},
				LastError: "address already in use",
			},
			contains: []string{
				"- package.json",
				"- server.js",
				"infrastructure problem",
				"address already in use",
			},
			notContains: []string{"The project is empty."},
		},
		{
			name: "task manager first pass",
			id:   TaskManager,
			data: TaskManagerData{Goal: "todo api", Spec: "# Spec"},
			contains: []string{
				"# Spec",
				"Break the work into",
				`{"tasks": [{"title": "..."}]}`,
			},
			notContains: []string{"Already completed tasks"},
		},
		{
			name: "task manager after verification failure",
			id:   TaskManager,
			data: TaskManagerData{
				Goal:      "todo api",
				Spec:      "# Spec",
				Completed: []string{"scaffold express app"},
				LastError: "health check failed",
			},
			contains: []string{
				"- scaffold express app",
				"health check failed",
				"List only the tasks needed to fix this.",
			},
		},
		{
			name: "reasoning with pivot directive",
			id:   Reasoning,
			data: ReasoningData{Goal: "g", Task: "t", Directive: "use fastify instead"},
			contains: []string{
				"Project context:\n(none)",
				"use fastify instead",
			},
		},
		{
			name: "planner includes sandbox partial",
			id:   Planner,
			data: PlannerData{Goal: "g", Task: "serve json", Context: "ctx", Workdir: "/workspace", AppPort: 3000},
			contains: []string{
				"serve json",
				"(/workspace inside the sandbox)",
				"port 3000",
				`"action": "write_file"`,
			},
		},
		{
			name: "debugger lists errors numbered",
			id:   Debugger,
			data: DebuggerData{
				Task:     "t",
				Step:     "[step-2] run npm test",
				Output:   "Cannot find module 'express'",
				Category: "MISSING_IMPLEMENTATION",
				Errors:   []string{"first", "second"},
			},
			contains: []string{
				"[step-2] run npm test",
				"--- error 1 ---\nfirst",
				"--- error 2 ---\nsecond",
				"replaces_failed_step",
			},
		},
		{
			name: "strategist",
			id:   Strategist,
			data: StrategistData{
				Goal:      "g",
				Task:      "t",
				Plan:      []string{"[step-1] write a.js"},
				Errors:    []string{"boom"},
				Completed: 1,
				Total:     3,
			},
			contains: []string{
				"Progress: 1 of 3 tasks completed.",
				"- [step-1] write a.js",
				"REPLAN",
				"ABORT",
			},
		},
		{
			name: "test gen",
			id:   TestGen,
			data: TestGenData{Goal: "g", Tasks: []string{"a", "b"}, Stack: "python", AppPort: 8000, HealthPath: "/health"},
			contains: []string{
				"http://localhost:8000/health",
				"- a\n- b",
				"Stack: python",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.id, tt.data)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Render() output missing %q\nGot:\n%s", want, got)
				}
			}
			for _, unwanted := range tt.notContains {
				if strings.Contains(got, unwanted) {
					t.Errorf("Render() output should not contain %q\nGot:\n%s", unwanted, got)
				}
			}
		})
	}
}

func TestRenderNotFound(t *testing.T) {
	_, err := Render(PromptID("nonexistent/prompt"), nil)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Render() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestRenderWrongDataType(t *testing.T) {
	_, err := Render(Planner, ArchitectData{})
	if !errors.Is(err, ErrInvalidData) {
		t.Errorf("Render() error = %v, want ErrInvalidData", err)
	}
}

func TestListAndExists(t *testing.T) {
	want := []PromptID{Architect, Debugger, Planner, Reasoning, Strategist, TaskManager, TestGen}

	got := List()
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, got[i], want[i])
		}
		if !Exists(want[i]) {
			t.Errorf("Exists(%s) = false", want[i])
		}
	}
	if Exists(PromptID("common/sandbox")) {
		t.Error("common partials must not be registered as prompts")
	}
}

func TestGetTemplate(t *testing.T) {
	src, err := GetTemplate(Planner)
	if err != nil {
		t.Fatalf("GetTemplate() error = %v", err)
	}
	if !strings.Contains(src, `{{template "common/sandbox" .}}`) {
		t.Errorf("GetTemplate() returned unexpected source:\n%s", src)
	}

	if _, err := GetTemplate(PromptID("missing")); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("GetTemplate() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestConcurrentRender(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Render(Strategist, StrategistData{Goal: "g"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Render() error = %v", err)
	}
}
