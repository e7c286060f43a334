package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PAYROLL_TEST_MODE") == "" {
			_ = os.Setenv("PAYROLL_TEST_MODE", "1")
		}
	})
}
