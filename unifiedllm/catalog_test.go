package unifiedllm

import "testing"

func TestGetModelInfo(t *testing.T) {
	info := GetModelInfo("deepseek-chat")
	if info == nil || info.Provider != "deepseek" {
		t.Fatalf("expected deepseek entry, got %+v", info)
	}
	if alias := GetModelInfo("4o-mini"); alias == nil || alias.ID != "gpt-4o-mini" {
		t.Errorf("alias lookup failed: %+v", alias)
	}
	if GetModelInfo("no-such-model") != nil {
		t.Error("expected nil for unknown model")
	}
}

func TestListModels(t *testing.T) {
	if len(ListModels("")) != len(Models) {
		t.Errorf("unfiltered list should return the whole catalog")
	}
	for _, m := range ListModels("openai") {
		if m.Provider != "openai" {
			t.Errorf("filter leaked %s", m.ID)
		}
	}
}

func TestGetLatestModel(t *testing.T) {
	if m := GetLatestModel("openai"); m == nil || m.ID != "gpt-4o-mini" {
		t.Errorf("unexpected default for openai: %+v", m)
	}
	if GetLatestModel("unknown") != nil {
		t.Error("expected nil for unknown provider")
	}
}
