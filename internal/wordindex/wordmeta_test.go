package wordindex

import "testing"

func TestMetaPackUnpackLossless(t *testing.T) {
	cases := []struct {
		wordLen, totalLen, wordIndex, logFreq int
		rank                                  Rank
	}{
		{3, 10, 2, 5, RankTitle},
		{0, 0, 0, 0, RankTertiary},
		{255, 255, 255, 63, RankSecondary},
	}
	for _, c := range cases {
		m := NewMeta(c.wordLen, c.totalLen, c.wordIndex, c.rank).withLogFrequency(c.logFreq)
		if m.WordLen() != c.wordLen {
			t.Errorf("WordLen() = %d, want %d", m.WordLen(), c.wordLen)
		}
		if m.TotalLen() != c.totalLen {
			t.Errorf("TotalLen() = %d, want %d", m.TotalLen(), c.totalLen)
		}
		if m.WordIndex() != c.wordIndex {
			t.Errorf("WordIndex() = %d, want %d", m.WordIndex(), c.wordIndex)
		}
		if m.LogFrequency() != c.logFreq {
			t.Errorf("LogFrequency() = %d, want %d", m.LogFrequency(), c.logFreq)
		}
		if m.Rank() != c.rank {
			t.Errorf("Rank() = %d, want %d", m.Rank(), c.rank)
		}
	}
}

func TestMetaSaturation(t *testing.T) {
	m := NewMeta(300, 999, -5, RankTitle)
	if m.WordLen() != 255 {
		t.Errorf("WordLen() = %d, want saturated 255", m.WordLen())
	}
	if m.TotalLen() != 255 {
		t.Errorf("TotalLen() = %d, want saturated 255", m.TotalLen())
	}
	if m.WordIndex() != 0 {
		t.Errorf("WordIndex() = %d, want clamped 0", m.WordIndex())
	}
	m2 := m.withLogFrequency(200)
	if m2.LogFrequency() != 63 {
		t.Errorf("LogFrequency() = %d, want saturated 63", m2.LogFrequency())
	}
}
