package report

// SeriesChart is the income/expense time-series payload for the chart renderer.
type SeriesChart struct {
	Labels   []string        `json:"labels"`
	Datasets []SeriesDataset `json:"datasets"`
}

type SeriesDataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor string    `json:"backgroundColor"`
	BorderColor     string    `json:"borderColor"`
	DisplayYAxis    bool      `json:"displayYAxis"`
	MaxTicksXLimit  int       `json:"maxTicksXLimit,omitempty"`
}

// CategoryChart is the top expense categories payload.
type CategoryChart struct {
	Labels   []string          `json:"labels"`
	Datasets []CategoryDataset `json:"datasets"`
}

type CategoryDataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor []string  `json:"backgroundColor"`
	BorderWidth     int       `json:"borderWidth"`
}

// NewSeriesChart wraps the daily series. The tick hint rides on the first dataset.
func NewSeriesChart(s DailySeries) SeriesChart {
	return SeriesChart{
		Labels: nonNil(s.Labels),
		Datasets: []SeriesDataset{
			{
				Label:           "Income",
				Data:            nonNilFloats(s.Income),
				BackgroundColor: "var(--color-green-500)",
				BorderColor:     "var(--color-green-600)",
				DisplayYAxis:    true,
				MaxTicksXLimit:  s.MaxTicks,
			},
			{
				Label:           "Expense",
				Data:            nonNilFloats(s.Expense),
				BackgroundColor: "var(--color-red-500)",
				BorderColor:     "var(--color-red-600)",
				DisplayYAxis:    true,
			},
		},
	}
}

// NewCategoryChart builds the breakdown chart from ranked categories, with
// colors parallel to the data.
func NewCategoryChart(top []CategoryShare) CategoryChart {
	ds := CategoryDataset{
		Label:           "Top Expenses",
		Data:            make([]float64, 0, len(top)),
		BackgroundColor: make([]string, 0, len(top)),
	}
	labels := make([]string, 0, len(top))
	for _, c := range top {
		labels = append(labels, c.Name)
		ds.Data = append(ds.Data, c.Total.InexactFloat64())
		ds.BackgroundColor = append(ds.BackgroundColor, c.ColorValue)
	}
	return CategoryChart{Labels: labels, Datasets: []CategoryDataset{ds}}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilFloats(s []float64) []float64 {
	if s == nil {
		return []float64{}
	}
	return s
}
