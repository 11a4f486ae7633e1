package dto

/**
  {
      "Balance": 4500.50,
      "Limit": 10000
  }
*/

type GatewayBalanceResponse struct {
	Balance float64 `json:"Balance"`
	Limit   float64 `json:"Limit"`
}

type GatewayUser struct {
	UserID     int64  `json:"userId"`
	Name       string `json:"name"`
	CurrencyID int64  `json:"currencyId"`
}

type GatewayDepositRequest struct {
	CashdeskID int     `json:"cashdeskId"`
	Lng        string  `json:"lng"`
	Summa      float64 `json:"summa"`
	Confirm    string  `json:"confirm"`
}

/**
  {
      "success": true,
      "summa": 500,
      "message": "OK",
      "messageId": 17
  }
*/

type GatewayDepositResponse struct {
	Success   bool    `json:"success"`
	Summa     float64 `json:"summa"`
	Message   string  `json:"message"`
	MessageID int64   `json:"messageId"`
}

type GatewayPayoutRequest struct {
	CashdeskID int    `json:"cashdeskId"`
	Lng        string `json:"lng"`
	Code       string `json:"code"`
	Confirm    string `json:"confirm"`
}

type GatewayPayoutResponse struct {
	Success   bool    `json:"success"`
	Summa     float64 `json:"summa"`
	Message   string  `json:"message"`
	MessageID int64   `json:"messageId"`
}
