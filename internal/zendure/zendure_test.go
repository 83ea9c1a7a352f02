package zendure

import "testing"

func TestParseModel(t *testing.T) {
	tests := []struct {
		in      string
		want    Model
		wantErr bool
	}{
		{"hub2000", ModelHub2000, false},
		{" HYPER2000 ", ModelHyper2000, false},
		{"Ace1500", ModelAce1500, false},
		{"superbase", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseModel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseModel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseModel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEveryModelHasProductID(t *testing.T) {
	seen := make(map[string]Model)
	for _, m := range Models {
		id, ok := m.ProductID()
		if !ok || id == "" {
			t.Fatalf("model %s has no product ID", m)
		}
		if other, dup := seen[id]; dup {
			t.Errorf("product ID %s shared by %s and %s", id, m, other)
		}
		seen[id] = m
	}
	if _, ok := Model("nope").ProductID(); ok {
		t.Error("unknown model resolved to a product ID")
	}
}

func TestTopicsFor(t *testing.T) {
	topics := TopicsFor("A8yh63", "dev1")

	if topics.Report != "/A8yh63/dev1/properties/report" {
		t.Errorf("Report = %q", topics.Report)
	}
	if topics.WriteReply != "/A8yh63/dev1/properties/write/reply" {
		t.Errorf("WriteReply = %q", topics.WriteReply)
	}
	if topics.Wildcard != "/A8yh63/dev1/#" {
		t.Errorf("Wildcard = %q", topics.Wildcard)
	}
	if topics.Write != "iot/A8yh63/dev1/properties/write" {
		t.Errorf("Write = %q", topics.Write)
	}

	subs := topics.Subscriptions()
	if len(subs) != 3 || subs[2] != topics.Wildcard {
		t.Errorf("Subscriptions() = %v", subs)
	}
	if !topics.IsDirect(topics.Report) || topics.IsDirect("/A8yh63/dev1/time-sync") {
		t.Error("IsDirect misclassified a topic")
	}
}
