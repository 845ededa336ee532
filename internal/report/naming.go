package report

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownFileFormat marks a jurisdiction configured with a file format the
// pipeline cannot emit.
var ErrUnknownFileFormat = errors.New("file extension not valid")

// FileExtension maps a jurisdiction's configured file format to the output
// extension. An unrecognized format is a fatal configuration error for that
// jurisdiction.
func FileExtension(fileFormat string) (string, error) {
	switch fileFormat {
	case "TXT":
		return ".txt", nil
	case "hl7":
		return ".hl7", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFileFormat, fileFormat)
	}
}

// texasTestPrefix is the fixed Texas test-report prefix: sender name and CLIA.
const texasTestPrefix = "MeridianLabServices_46D2199811"

// TestFileName derives the output file name for a test-flow message. The
// default is the order id; jurisdictions with custom naming requests override
// it.
func TestFileName(doh, orderID string) string {
	if doh == "texas" {
		return texasTestPrefix + "_" + time.Now().UTC().Format("20060102") + "_" + orderID
	}
	return orderID
}

// texasVaxPrefix is the fixed Texas vaccination-report prefix.
const texasVaxPrefix = "MERIDIANTV"

// VaxFileName derives the output file name for a vaccination-flow message:
// Texas wants prefix + 2-digit year + 3-digit day-of-year + a running index,
// Utah wants order id + vaccination date, everyone else the order id.
func VaxFileName(doh, orderID string, index int, vaccinationDate string) string {
	switch doh {
	case "texas":
		now := time.Now().UTC()
		return fmt.Sprintf("%s%s%03d.%d", texasVaxPrefix, now.Format("06"), now.YearDay(), index)
	case "utah":
		return orderID + vaccinationDate
	default:
		return orderID
	}
}
