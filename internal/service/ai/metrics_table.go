package ai

// ModelMetrics holds the published evaluation figures of a model, as display strings.
type ModelMetrics struct {
	MAP       string
	Precision string
	Recall    string
}

// MetricsRow is one line of the home page table.
type MetricsRow struct {
	Model string
	ModelMetrics
}

var metricsTable = map[string]ModelMetrics{
	"YOLOv8":  {MAP: "98,3%", Precision: "98,3%", Recall: "97,9%"},
	"YOLOv9":  {MAP: "93.2%", Precision: "90%", Recall: "87%"},
	"YOLOv10": {MAP: "94%", Precision: "86%", Recall: "86,8%"},
	"YOLOv11": {MAP: "98.2%", Precision: "98,2%", Recall: "97,8%"},
}

var metricsOrder = []string{"YOLOv8", "YOLOv9", "YOLOv10", "YOLOv11"}

// MetricsFor returns the evaluation figures of model.
func MetricsFor(model string) (ModelMetrics, bool) {
	m, ok := metricsTable[model]
	return m, ok
}

// MetricsTable returns the static metrics table in display order.
func MetricsTable() []MetricsRow {
	rows := make([]MetricsRow, 0, len(metricsOrder))
	for _, name := range metricsOrder {
		rows = append(rows, MetricsRow{Model: name, ModelMetrics: metricsTable[name]})
	}
	return rows
}
