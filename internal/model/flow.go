package model

// BusinessFlow identifies the commercial product a case is being sold under.
type BusinessFlow string

const (
	FlowVentaPlazo       BusinessFlow = "Venta a Plazo"
	FlowAhorroProgramado BusinessFlow = "Plan de Ahorro"
	FlowCreditoColectivo BusinessFlow = "Crédito Colectivo"
	FlowVentaDirecta     BusinessFlow = "Venta Directa"
)
