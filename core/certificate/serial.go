package certificate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	serialNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("rotasi-lms/certificates"))
	unsafeFilename  = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// Serial derives the certificate serial from the (learner, course) pair.
// It carries the whole name-based UUID, in groups of four hex digits.
func Serial(learnerID, courseID int64) string {
	id := uuid.NewSHA1(serialNamespace, []byte(strconv.FormatInt(learnerID, 10)+":"+strconv.FormatInt(courseID, 10)))
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	groups := make([]string, 0, len(hex)/4)
	for i := 0; i < len(hex); i += 4 {
		groups = append(groups, hex[i:i+4])
	}
	return "RL-" + strings.Join(groups, "-")
}

// Filename returns the download filename: Sertifikat_<course>_<user>.pdf
func Filename(courseTitle, learnerName string) string {
	return fmt.Sprintf("Sertifikat_%s_%s.pdf", filenamePart(courseTitle), filenamePart(learnerName))
}

func filenamePart(s string) string {
	return strings.Trim(unsafeFilename.ReplaceAllString(s, "_"), "_")
}
