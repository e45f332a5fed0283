package shared

import "testing"

func TestNormalizeText(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases and trims",
			in:   "  SoNg TiTlE  ",
			want: "song title",
		},
		{
			name: "folds diacritics",
			in:   "Beyoncé",
			want: "beyonce",
		},
		{
			name: "collapses whitespace",
			in:   "Song   \t Title",
			want: "song title",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeText(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeText() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCleanTitle(t *testing.T) {
	tc := []struct {
		name  string
		title string
		want  string
	}{
		{
			name:  "strips parenthetical qualifier",
			title: "Bohemian Rhapsody (Live)",
			want:  "Bohemian Rhapsody",
		},
		{
			name:  "strips bracketed qualifier",
			title: "Bohemian Rhapsody [Remastered 2011]",
			want:  "Bohemian Rhapsody",
		},
		{
			name:  "strips upload noise words",
			title: "Take On Me Official Video",
			want:  "Take On Me",
		},
		{
			name:  "keeps essential punctuation",
			title: "Don't Stop Me Now",
			want:  "Don't Stop Me Now",
		},
		{
			name:  "strips multiple qualifiers",
			title: "Hurt (Quiet) [Live] lyrics",
			want:  "Hurt",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanTitle(tt.title)
			if got != tt.want {
				t.Errorf("CleanTitle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeTrackKey(t *testing.T) {
	tc := []struct {
		name   string
		title  string
		artist string
		want   string
	}{
		{
			name:   "basic normalization",
			title:  "Song Title",
			artist: "Artist Name",
			want:   "song title|artist name",
		},
		{
			name:   "qualifier and case insensitive",
			title:  "Song Title (Remastered 2009)",
			artist: "ARTIST NAME",
			want:   "song title|artist name",
		},
		{
			name:   "diacritics fold on both sides",
			title:  "Déjà Vu",
			artist: "Beyoncé",
			want:   "deja vu|beyonce",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTrackKey(tt.title, tt.artist)
			if got != tt.want {
				t.Errorf("NormalizeTrackKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(215); got != "3:35" {
		t.Errorf("FormatDuration(215) = %v, want 3:35", got)
	}
	if got := FormatDuration(0); got != "0:00" {
		t.Errorf("FormatDuration(0) = %v, want 0:00", got)
	}
}
