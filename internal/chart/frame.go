package chart

// Vec позиция в экранных координатах (начало в центре области просмотра)
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Marker маркер точки ряда
type Marker struct {
	Index  int     `json:"index"`
	Pos    Vec     `json:"pos"`
	Radius float64 `json:"radius"`
}

// Connector отрезок между соседними точками
type Connector struct {
	From      Vec     `json:"from"`
	To        Vec     `json:"to"`
	Center    Vec     `json:"center"`
	Length    float64 `json:"length"`
	Angle     float64 `json:"angle"`
	Thickness float64 `json:"thickness"`
}

// AxisLabel подпись и линия разметки на оси
type AxisLabel struct {
	Pos  float64 `json:"pos"`
	Text string  `json:"text"`
}

// Indicator горизонтальная линия среднего значения
type Indicator struct {
	Visible bool    `json:"visible"`
	Y       float64 `json:"y"`
}

// Viewport прокручиваемая область с содержимым графика
type Viewport struct {
	Width        float64 `json:"width"`
	ContentWidth float64 `json:"content_width"`
	ScrollX      float64 `json:"scroll_x"`
}

// MaxScroll крайняя правая позиция прокрутки
func (v Viewport) MaxScroll() float64 {
	if v.ContentWidth <= v.Width {
		return 0
	}
	return v.ContentWidth - v.Width
}

// PointDetail открытая панель с подробностями точки
type PointDetail struct {
	Index int    `json:"index"`
	Pos   Vec    `json:"pos"`
	X     string `json:"x"`
	Y     string `json:"y"`
}

// Frame снимок всего, что нужно нарисовать
type Frame struct {
	Series          string       `json:"series"`
	Shown           bool         `json:"shown"`
	Width           float64      `json:"width"`
	Height          float64      `json:"height"`
	Unit            string       `json:"unit"`
	XMax            int          `json:"x_max"`
	WidthPerUnit    float64      `json:"width_per_unit"`
	MinWidthPerUnit float64      `json:"min_width_per_unit"`
	MaxXReached     bool         `json:"max_x_reached"`
	KeepEntireGraph bool         `json:"keep_entire_graph"`
	Markers         []Marker     `json:"markers"`
	Connectors      []Connector  `json:"connectors"`
	XLabels         []AxisLabel  `json:"x_labels"`
	YLabels         []AxisLabel  `json:"y_labels"`
	Average         Indicator    `json:"average"`
	Viewport        Viewport     `json:"viewport"`
	Detail          *PointDetail `json:"detail,omitempty"`
}
