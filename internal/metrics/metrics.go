package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder は generator.Recorder の Prometheus 実装です。
type Recorder struct {
	batches      *prometheus.CounterVec
	batchSize    prometheus.Histogram
	images       *prometheus.CounterVec
	imageLatency *prometheus.HistogramVec
}

// NewRecorder はメトリクスを生成して reg に登録します。
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylizer",
			Name:      "batches_total",
			Help:      "Transform batches by outcome.",
		}, []string{"outcome"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stylizer",
			Name:      "batch_size",
			Help:      "Number of images per submitted batch.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylizer",
			Name:      "images_total",
			Help:      "Per-image transform outcomes.",
		}, []string{"outcome"}),
		imageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stylizer",
			Name:      "image_duration_seconds",
			Help:      "Per-image pipeline latency (load, encode, remote call, interpretation).",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"success"}),
	}

	for _, c := range []prometheus.Collector{r.batches, r.batchSize, r.images, r.imageLatency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObserveImage(outcome string, d time.Duration) {
	r.images.WithLabelValues(outcome).Inc()
	r.imageLatency.WithLabelValues(strconv.FormatBool(outcome == "success")).Observe(d.Seconds())
}

func (r *Recorder) ObserveBatch(outcome string, size int) {
	r.batches.WithLabelValues(outcome).Inc()
	r.batchSize.Observe(float64(size))
}
