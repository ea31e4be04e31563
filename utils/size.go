package utils

import "fmt"

const (
	Kilobyte = 1024
	Megabyte = 1024 * Kilobyte
	Gigabyte = 1024 * Megabyte
)

// DataSize is a byte count printed in binary units.
type DataSize uint64

func (d DataSize) String() string {
	switch {
	case d >= Gigabyte:
		return fmt.Sprintf("%.2f GiB", float64(d)/Gigabyte)
	case d >= Megabyte:
		return fmt.Sprintf("%.2f MiB", float64(d)/Megabyte)
	case d >= Kilobyte:
		return fmt.Sprintf("%.2f KiB", float64(d)/Kilobyte)
	}
	return fmt.Sprintf("%d B", uint64(d))
}
