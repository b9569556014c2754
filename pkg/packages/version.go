package packages

import (
    "fmt"
    "strconv"
    "strings"
)

// Version is a four part version (major.minor.build.revision) packed into a
// uint64, 16 bits per part, so versions order as integers.
type Version uint64

// ParseVersion accepts one to four dot separated parts; missing parts are 0.
func ParseVersion(s string) (Version, error) {
    s = strings.TrimSpace(s)
    if s == "" { return 0, fmt.Errorf("empty version") }
    parts := strings.Split(s, ".")
    if len(parts) > 4 { return 0, fmt.Errorf("version %q has more than four parts", s) }
    var v uint64
    for i := 0; i < 4; i++ {
        var n uint64
        if i < len(parts) {
            var err error
            n, err = strconv.ParseUint(parts[i], 10, 16)
            if err != nil { return 0, fmt.Errorf("version %q: %w", s, err) }
        }
        v = v<<16 | n
    }
    return Version(v), nil
}

func (v Version) String() string {
    return fmt.Sprintf("%d.%d.%d.%d", uint16(v>>48), uint16(v>>32), uint16(v>>16), uint16(v))
}

// VersionRange bounds versions inclusively; a zero bound is open.
type VersionRange struct {
    Min Version
    Max Version
}

// Contains reports whether v lies inside the range.
func (r VersionRange) Contains(v Version) bool {
    if r.Min != 0 && v < r.Min { return false }
    if r.Max != 0 && v > r.Max { return false }
    return true
}
