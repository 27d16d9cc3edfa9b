package atomicfloat

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFloat64(t *testing.T) {
	Convey("Given a Float64 initialized to 1.5", t, func() {
		f := New(1.5)

		Convey("Load returns the initial value", func() {
			So(f.Load(), ShouldEqual, 1.5)
		})

		Convey("Store replaces the value", func() {
			f.Store(-3.25)
			So(f.Load(), ShouldEqual, -3.25)
		})

		Convey("Add returns the accumulated value", func() {
			got := f.Add(0.5)
			So(got, ShouldEqual, 2.0)
			So(f.Load(), ShouldEqual, 2.0)
		})

		Convey("concurrent Adds all land, none lost under contention", func() {
			var wg sync.WaitGroup
			const n = 200
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					f.Add(1)
				}()
			}
			wg.Wait()
			So(f.Load(), ShouldEqual, 1.5+float64(n))
		})
	})
}
