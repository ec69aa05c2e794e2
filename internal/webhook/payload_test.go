package webhook

import (
	"bytes"
	"testing"

	"github.com/hitoshi/boothpost/internal/model"
)

func TestBuildPayload_MapsFields(t *testing.T) {
	var buf bytes.Buffer
	s := newTestService(nil, "", &mockMetrics{}, &buf)

	p := s.BuildPayload(samplePost(), fixedNow)

	if p.Timestamp != "2026-04-04T21:07:08.009Z" {
		t.Errorf("Timestamp = %q", p.Timestamp)
	}
	if p.Event.EventEn != "Tokyo Game Show" || p.Event.Hashtags != "#TGS2026" || p.Event.Venue != "Makuhari Messe" {
		t.Errorf("Event = %+v", p.Event)
	}
	if p.Person != (PersonPayload{Name: "Mika", Role: "cosplayer", Account: "@mika"}) {
		t.Errorf("Person = %+v", p.Person)
	}
	if p.Booth != (BoothPayload{Name: "Studio K", Account: "@studiok"}) {
		t.Errorf("Booth = %+v", p.Booth)
	}
	if p.Settings.AIModel != "gemini" {
		t.Errorf("AIModel = %q", p.Settings.AIModel)
	}
}

func TestBuildPayload_FallbackTextWhenCommentEmpty(t *testing.T) {
	var buf bytes.Buffer
	s := newTestService(nil, "", &mockMetrics{}, &buf)

	post := samplePost()
	post.AIComment = ""
	p := s.BuildPayload(post, fixedNow)

	want := "Tokyo Game Show\nStudio K\nMika\n#TGS2026"
	if p.Posts.X1 != want {
		t.Errorf("X1 = %q, want %q", p.Posts.X1, want)
	}
	if p.Posts.X2 != want || p.Posts.Instagram != want {
		t.Errorf("platform texts differ: %+v", p.Posts)
	}
}

func TestBuildPayload_FallbackWhenCommentIsOnlyMarkup(t *testing.T) {
	var buf bytes.Buffer
	s := newTestService(nil, "", &mockMetrics{}, &buf)

	post := samplePost()
	post.AIComment = "<br/>"
	p := s.BuildPayload(post, fixedNow)

	if p.Posts.X1 != FallbackText(post) {
		t.Errorf("X1 = %q", p.Posts.X1)
	}
}

func TestBuildPayload_TotalOnEmptyPost(t *testing.T) {
	var buf bytes.Buffer
	s := newTestService(nil, "", &mockMetrics{}, &buf)

	p := s.BuildPayload(model.PostItem{}, fixedNow)

	if p.Posts.X1 != "" || p.Photo.Base64 != "" {
		t.Errorf("payload = %+v", p)
	}
	if p.Timestamp == "" {
		t.Error("Timestamp should always be set")
	}
}

func TestFallbackText(t *testing.T) {
	tests := []struct {
		name string
		post model.PostItem
		want string
	}{
		{
			"japanese name when english missing",
			model.PostItem{EventInfo: model.EventInfo{EventJp: "コミケ"}, PersonName: "Mika"},
			"コミケ\nMika",
		},
		{
			"skips blanks",
			model.PostItem{BoothName: "  ", EventInfo: model.EventInfo{Hashtags: "#tag"}},
			"#tag",
		},
		{"all empty", model.PostItem{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FallbackText(tt.post); got != tt.want {
				t.Errorf("FallbackText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripDataURLPrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data:image/png;base64,AAAA", "AAAA"},
		{"AAAA", "AAAA"},
		{"", ""},
		{"data:broken", "data:broken"},
	}
	for _, tt := range tests {
		if got := StripDataURLPrefix(tt.in); got != tt.want {
			t.Errorf("StripDataURLPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildPayload_LegacySingleImage(t *testing.T) {
	var buf bytes.Buffer
	s := newTestService(nil, "", &mockMetrics{}, &buf)

	post := samplePost()
	post.Images = nil
	post.Image = "data:image/jpeg;base64,TEVHQUNZ"

	if got := s.BuildPayload(post, fixedNow).Photo.Base64; got != "TEVHQUNZ" {
		t.Errorf("Photo.Base64 = %q", got)
	}
}
