package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "http://localhost:8080"

// demoStoreID — магазин из сидовой миграции (Demo Pizza)
const demoStoreID = 1

// AuthResponse структура ответа при аутентификации
type AuthResponse struct {
	Token string `json:"token"`
}

// OrderResponse — заказ в ответах API
type OrderResponse struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	TotalPrice string `json:"total_price"`
}

// PaymentResponse — платеж в ответах API
type PaymentResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Amount string `json:"amount"`
}

// CouponResponse — купон в ответах API
type CouponResponse struct {
	ID int64 `json:"id"`
}

// UserCouponResponse — выданный купон в ответах API
type UserCouponResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func authenticateUser(t *testing.T, email, password, role string) string {
	body := map[string]string{"email": email, "password": password}
	if role != "" {
		body["role"] = role
	}
	jsonBody, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(baseURL+"/api/auth", "application/json", bytes.NewBuffer(jsonBody))
	require.NoError(t, err, "Auth request should not error")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode, "Expected 200 OK for valid auth")

	var authResp AuthResponse
	err = json.NewDecoder(resp.Body).Decode(&authResp)
	require.NoError(t, err, "Decoding auth response should succeed")
	require.NotEmpty(t, authResp.Token, "Token should not be empty")
	return authResp.Token
}

// doJSON выполняет авторизованный запрос и декодирует ответ в out (если out != nil)
func doJSON(t *testing.T, token, method, path string, payload, out interface{}) *http.Response {
	var body *bytes.Buffer
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(jsonBody)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		err = json.NewDecoder(resp.Body).Decode(out)
		require.NoError(t, err, "decoding response should succeed")
	}
	return resp
}

// assertDecimalEqual сравнивает денежные значения без учета хвостовых нулей
func assertDecimalEqual(t *testing.T, expected, actual string) {
	t.Helper()
	want, err := decimal.NewFromString(expected)
	require.NoError(t, err)
	got, err := decimal.NewFromString(actual)
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "expected %s, got %s", expected, actual)
}

func randomEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@test.market", prefix, rand.Int63())
}

func createDemoOrder(t *testing.T, token string) OrderResponse {
	var order OrderResponse
	resp := doJSON(t, token, "POST", "/api/orders", map[string]interface{}{
		"store_id": demoStoreID,
		"address":  "Lenina st. 1",
		"lines": []map[string]interface{}{
			{"menu_id": 1, "quantity": 2},
			{"menu_id": 3, "quantity": 1},
		},
	}, &order)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "expected 201 for order creation")
	require.Equal(t, "PENDING", order.Status)
	return order
}

// сценарий с успешной аутентификацией пользователя
func TestAuth(t *testing.T) {
	token := authenticateUser(t, randomEmail("auth"), "testpass123", "")
	assert.NotEmpty(t, token, "token should be obtained")
}

// сценарий с безуспешной аутентификацией пользователя
func TestAuthInvalid(t *testing.T) {
	reqBody := []byte(`{"email": "", "password": ""}`)
	resp, err := http.Post(baseURL+"/api/auth", "application/json", bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "expected 400 for invalid auth")
}

// запрос без токена отклоняется
func TestOrdersUnauthorized(t *testing.T) {
	resp, err := http.Get(baseURL + "/api/orders")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "expected 401 for missing token")
}

// сценарий создания и чтения заказа
func TestCreateAndGetOrder(t *testing.T) {
	token := authenticateUser(t, randomEmail("order"), "testpass123", "")
	order := createDemoOrder(t, token)

	// 9.50 * 2 + 2.50
	assertDecimalEqual(t, "21.50", order.TotalPrice)

	var fetched OrderResponse
	resp := doJSON(t, token, "GET", fmt.Sprintf("/api/orders/%d", order.ID), nil, &fetched)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, order.ID, fetched.ID)
}

// чужой заказ недоступен для чтения
func TestGetOrderForbidden(t *testing.T) {
	tokenA := authenticateUser(t, randomEmail("owner-a"), "testpass123", "")
	tokenB := authenticateUser(t, randomEmail("owner-b"), "testpass123", "")

	order := createDemoOrder(t, tokenA)

	resp := doJSON(t, tokenB, "GET", fmt.Sprintf("/api/orders/%d", order.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "expected 403 for foreign order")
}

// сценарий с несуществующей позицией меню
func TestCreateOrderUnknownMenu(t *testing.T) {
	token := authenticateUser(t, randomEmail("badmenu"), "testpass123", "")

	resp := doJSON(t, token, "POST", "/api/orders", map[string]interface{}{
		"store_id": demoStoreID,
		"address":  "Lenina st. 1",
		"lines":    []map[string]interface{}{{"menu_id": 999999, "quantity": 1}},
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "expected 422 for unknown menu")
}

// отмена заказа внутри окна
func TestCancelOrder(t *testing.T) {
	token := authenticateUser(t, randomEmail("cancel"), "testpass123", "")
	order := createDemoOrder(t, token)

	resp := doJSON(t, token, "DELETE", fmt.Sprintf("/api/orders/%d", order.ID), nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "expected 200 for cancel inside the window")

	// после отмены заказ не читается
	resp = doJSON(t, token, "GET", fmt.Sprintf("/api/orders/%d", order.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "cancelled order should be hidden")
}

// полный сценарий: заказ -> платеж -> продвижение статуса владельцем -> завершение оплаты
func TestOrderPaymentFlow(t *testing.T) {
	customer := authenticateUser(t, randomEmail("flow"), "testpass123", "")
	owner := authenticateUser(t, "owner@demo.market", "password", "")
	manager := authenticateUser(t, "manager@demo.market", "password", "")

	order := createDemoOrder(t, customer)

	var payment PaymentResponse
	resp := doJSON(t, customer, "POST", "/api/payments", map[string]interface{}{
		"order_id":    order.ID,
		"card_number": "4242424242424242",
	}, &payment)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "expected 201 for payment request")
	assert.Equal(t, "PENDING", payment.Status)
	assertDecimalEqual(t, order.TotalPrice, payment.Amount)

	// повторный платеж по тому же заказу отклоняется
	resp = doJSON(t, customer, "POST", "/api/payments", map[string]interface{}{
		"order_id":    order.ID,
		"card_number": "4242424242424242",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "expected 409 for duplicate payment")

	// владелец продвигает заказ по цепочке
	var advanced OrderResponse
	resp = doJSON(t, owner, "POST", fmt.Sprintf("/api/orders/%d/advance", order.ID), nil, &advanced)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ACCEPTED", advanced.Status)

	// менеджер завершает оплату
	var settled PaymentResponse
	resp = doJSON(t, manager, "PATCH", fmt.Sprintf("/api/payments/%d/status", payment.ID), map[string]string{
		"status": "COMPLETED",
	}, &settled)
	require.Equal(t, http.StatusOK, resp.StatusCode, "expected 200 for settlement")
	assert.Equal(t, "COMPLETED", settled.Status)

	// покупатель видит свой платеж с обновленным статусом
	var fetched PaymentResponse
	resp = doJSON(t, customer, "GET", fmt.Sprintf("/api/payments/%d", payment.ID), nil, &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode, "expected 200 for payment read")
	assert.Equal(t, "COMPLETED", fetched.Status)

	// покупатель не имеет права менять статус платежа
	resp = doJSON(t, customer, "PATCH", fmt.Sprintf("/api/payments/%d/status", payment.ID), map[string]string{
		"status": "CANCELLED",
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "customer must not settle payments")
}

// PENDING нельзя назначить платежу как целевой статус
func TestSetPaymentStatusPendingRejected(t *testing.T) {
	customer := authenticateUser(t, randomEmail("pend"), "testpass123", "")
	manager := authenticateUser(t, "manager@demo.market", "password", "")

	order := createDemoOrder(t, customer)

	var payment PaymentResponse
	resp := doJSON(t, customer, "POST", "/api/payments", map[string]interface{}{
		"order_id":    order.ID,
		"card_number": "4242424242424242",
	}, &payment)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, manager, "PATCH", fmt.Sprintf("/api/payments/%d/status", payment.ID), map[string]string{
		"status": "PENDING",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "PENDING is not an assignable target")
}

// сценарий купона: создание мастером, выдача, повторная выдача, погашение
func TestCouponIssueAndRedeem(t *testing.T) {
	master := authenticateUser(t, "master@demo.market", "password", "")
	customer := authenticateUser(t, randomEmail("coupon"), "testpass123", "")

	var coupon CouponResponse
	resp := doJSON(t, master, "POST", "/api/coupons", map[string]interface{}{
		"scope":           "MASTER",
		"discount_type":   "FIXED",
		"discount_value":  "5.00",
		"min_order_price": "10.00",
		"quantity":        2,
		"expires_at":      time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, &coupon)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "expected 201 for coupon creation")

	// условия купона открыты покупателю до получения
	var visible CouponResponse
	resp = doJSON(t, customer, "GET", fmt.Sprintf("/api/coupons/%d", coupon.ID), nil, &visible)
	require.Equal(t, http.StatusOK, resp.StatusCode, "expected 200 for coupon read")
	assert.Equal(t, coupon.ID, visible.ID)

	var uc UserCouponResponse
	resp = doJSON(t, customer, "POST", fmt.Sprintf("/api/coupons/%d/issue", coupon.ID), nil, &uc)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "expected 201 for coupon issue")
	assert.Equal(t, "ACTIVE", uc.Status)

	// второй экземпляр тому же пользователю не выдается
	resp = doJSON(t, customer, "POST", fmt.Sprintf("/api/coupons/%d/issue", coupon.ID), nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "expected 409 for repeated issue")

	// погашение: заказ ниже минимальной суммы отклоняется
	resp = doJSON(t, customer, "POST", fmt.Sprintf("/api/user-coupons/%d/redeem", uc.ID), map[string]string{
		"order_total": "9.00",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "expected 409 below min order price")

	var redeem struct {
		Discount string `json:"discount"`
	}
	resp = doJSON(t, customer, "POST", fmt.Sprintf("/api/user-coupons/%d/redeem", uc.ID), map[string]string{
		"order_total": "21.50",
	}, &redeem)
	require.Equal(t, http.StatusOK, resp.StatusCode, "expected 200 for redeem")
	assertDecimalEqual(t, "5.00", redeem.Discount)

	// купон одноразовый
	resp = doJSON(t, customer, "POST", fmt.Sprintf("/api/user-coupons/%d/redeem", uc.ID), map[string]string{
		"order_total": "21.50",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "expected 409 for double redeem")
}

// issueCouponStatus выдает купон без проверок testing.T — годится для горутин
func issueCouponStatus(token string, couponID int64) (int, error) {
	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/coupons/%d/issue", baseURL, couponID), bytes.NewBuffer(nil))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Тираж под конкурентной нагрузкой: из пяти одновременных запросов за два
// экземпляра выигрывают ровно два, остальные получают Conflict.
func TestCouponSoldOut(t *testing.T) {
	master := authenticateUser(t, "master@demo.market", "password", "")

	const quantity = 2
	var coupon CouponResponse
	resp := doJSON(t, master, "POST", "/api/coupons", map[string]interface{}{
		"scope":          "MASTER",
		"discount_type":  "PERCENT",
		"discount_value": "10",
		"quantity":       quantity,
		"expires_at":     time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, &coupon)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tokens := make([]string, 5)
	for i := range tokens {
		tokens[i] = authenticateUser(t, randomEmail(fmt.Sprintf("soldout-%d", i)), "testpass123", "")
	}

	statuses := make([]int, len(tokens))
	errs := make([]error, len(tokens))
	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			statuses[i], errs[i] = issueCouponStatus(token, coupon.ID)
		}(i, token)
	}
	wg.Wait()

	issued, conflicts := 0, 0
	for i := range statuses {
		require.NoError(t, errs[i])
		switch statuses[i] {
		case http.StatusCreated:
			issued++
		case http.StatusConflict:
			conflicts++
		default:
			t.Fatalf("unexpected status %d from concurrent issue", statuses[i])
		}
	}
	assert.Equal(t, quantity, issued, "exactly the run size must be issued")
	assert.Equal(t, len(tokens)-quantity, conflicts)

	// и после исчерпания тиража выдача остается закрытой
	late := authenticateUser(t, randomEmail("soldout-late"), "testpass123", "")
	resp = doJSON(t, late, "POST", fmt.Sprintf("/api/coupons/%d/issue", coupon.ID), nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "expected 409 when the run is exhausted")
}

// обычный покупатель не создает купоны
func TestCreateCouponForbidden(t *testing.T) {
	customer := authenticateUser(t, randomEmail("nocoupon"), "testpass123", "")

	resp := doJSON(t, customer, "POST", "/api/coupons", map[string]interface{}{
		"scope":          "MASTER",
		"discount_type":  "FIXED",
		"discount_value": "5.00",
		"quantity":       1,
		"expires_at":     time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "expected 403 for customer creating a coupon")
}
