package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmojiKind(t *testing.T) {
	tests := []struct {
		raw     string
		want    EmojiKind
		wantErr bool
	}{
		{raw: "like", want: EmojiLike},
		{raw: "love", want: EmojiLove},
		{raw: " laugh ", want: EmojiLaugh},
		{raw: "wow", want: EmojiWow},
		{raw: "sad", want: EmojiSad},
		{raw: "angry", want: EmojiAngry},
		{raw: "Love", wantErr: true},
		{raw: "thumbs", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseEmojiKind(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, HasCode(err, CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmojiKindsHaveGlyphs(t *testing.T) {
	assert.Len(t, EmojiKinds, 6)
	for _, k := range EmojiKinds {
		assert.True(t, k.Valid())
		assert.NotEmpty(t, k.Glyph())
	}
	assert.Empty(t, EmojiKind("nope").Glyph())
}

func TestEmojiHistogramTotal(t *testing.T) {
	h := EmojiHistogram{EmojiLove: 2, EmojiSad: 1}
	assert.Equal(t, 3, h.Total())
	assert.Equal(t, 0, EmojiHistogram{}.Total())
}
