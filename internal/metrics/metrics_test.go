package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestSetAcceleratorInUse(t *testing.T) {
	Convey("Given a fresh Metrics bound to an isolated registry", t, func() {
		reg := prometheus.NewRegistry()
		m := NewWithRegisterer(reg)

		Convey("SetAcceleratorInUse(true) sets the gauge to 1", func() {
			m.SetAcceleratorInUse(true)
			So(gaugeValue(t, m.AcceleratorInUse), ShouldEqual, 1)
		})

		Convey("SetAcceleratorInUse(false) sets the gauge to 0", func() {
			m.SetAcceleratorInUse(true)
			m.SetAcceleratorInUse(false)
			So(gaugeValue(t, m.AcceleratorInUse), ShouldEqual, 0)
		})
	})
}

func TestNewRegistersEveryMetric(t *testing.T) {
	Convey("Given an isolated registry", t, func() {
		reg := prometheus.NewRegistry()

		Convey("NewWithRegisterer registers without error and counters start at zero", func() {
			m := NewWithRegisterer(reg)
			So(m, ShouldNotBeNil)

			families, err := reg.Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThanOrEqualTo, 9)
		})
	})
}
