package certificate

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerial(t *testing.T) {
	s := Serial(1, 2)
	assert.Regexp(t, regexp.MustCompile(`^RL(-[0-9A-F]{4}){8}$`), s)
	assert.Equal(t, s, Serial(1, 2))
	assert.NotEqual(t, s, Serial(2, 1))
	assert.NotEqual(t, s, Serial(1, 3))
}

func TestSerial_distinct(t *testing.T) {
	seen := make(map[string][2]int64)
	for learner := int64(1); learner <= 300; learner++ {
		for crs := int64(1); crs <= 300; crs++ {
			s := Serial(learner, crs)
			if prev, ok := seen[s]; ok {
				t.Fatalf("serial %s shared by %v and %v", s, prev, [2]int64{learner, crs})
			}
			seen[s] = [2]int64{learner, crs}
		}
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		course, learner, want string
	}{
		{"Go Basics", "Budi", "Sertifikat_Go_Basics_Budi.pdf"},
		{"  Go: the hard parts! ", "Siti Nur'aini", "Sertifikat_Go_the_hard_parts_Siti_Nur_aini.pdf"},
		{"C++/Rust", "A.B", "Sertifikat_C_Rust_A_B.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.course, tt.learner))
		})
	}
}
