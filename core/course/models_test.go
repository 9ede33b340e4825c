package course_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/academia/core/course"
)

func TestCourse_IsSweepable(t *testing.T) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	threshold := now.Add(-30 * day)

	tests := []struct {
		name string
		end  time.Time
		want bool
	}{
		{name: "running", end: now.Add(day)},
		{name: "ended, within grace period", end: now.Add(-29 * day)},
		{name: "ends exactly at the threshold", end: threshold},
		{name: "just before the threshold", end: threshold.Add(-time.Nanosecond), want: true},
		{name: "long expired", end: now.Add(-31 * day), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := course.Course{DurationDays: 30, EndDatetime: tt.end}
			assert.Equal(t, threshold, c.SweepThreshold(now))
			assert.Equal(t, tt.want, c.IsSweepable(now))

			at := c.SweepableAt()
			assert.False(t, c.IsSweepable(at), "not sweepable at SweepableAt itself")
			assert.True(t, c.IsSweepable(at.Add(time.Nanosecond)))
		})
	}
}

func TestCourse_IsSweepable_ZeroDuration(t *testing.T) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	c := course.Course{EndDatetime: now}
	assert.False(t, c.IsSweepable(now))
	assert.True(t, c.IsSweepable(now.Add(time.Nanosecond)))
	assert.Equal(t, now, c.SweepableAt())
}
