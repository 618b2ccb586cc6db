package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/campusbite/campusbite-api/internal/domain/order"
)

const maxBodySize = 64 << 10

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, &order.ValidationError{Field: "body", Reason: "unreadable request body", Err: err}
	}
	return data, nil
}

func malformed(err error) error {
	return &order.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error(), Err: err}
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		return decimal.Zero, errors.Errorf("expected number, got %s", tt)
	}
}

// optStr reads a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeCreateRequest reads
//
//	{"items":[{"id":"...","quantity":2,"price":20}],"totalAmount":40,"paymentMethod":"CASH","phone":"07..."}
func decodeCreateRequest(data []byte) (order.CreateRequest, error) {
	var (
		req    order.CreateRequest
		method string
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeLine(d)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, l)
				return nil
			})
		case "totalAmount":
			v, err := decodeDecimal(d)
			req.TotalAmount = v
			return err
		case "paymentMethod":
			v, err := d.Str()
			method = v
			return err
		case "phone":
			v, err := optStr(d)
			req.Phone = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.CreateRequest{}, malformed(err)
	}
	if method == "" {
		return order.CreateRequest{}, &order.ValidationError{Field: "paymentMethod", Reason: "required"}
	}
	if req.PaymentMethod, err = order.ParsePaymentMethod(method); err != nil {
		return order.CreateRequest{}, &order.ValidationError{Field: "paymentMethod", Reason: "must be CASH or MOBILE_MONEY", Err: err}
	}
	return req, nil
}

func decodeLine(d *jx.Decoder) (order.LineRequest, error) {
	var l order.LineRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id", "foodItemId":
			v, err := d.Str()
			l.FoodItemID = v
			return err
		case "quantity":
			v, err := d.Int()
			l.Quantity = v
			return err
		case "price", "unitPrice":
			v, err := decodeDecimal(d)
			l.UnitPrice = v
			return err
		default:
			return d.Skip()
		}
	})
	return l, err
}

// decodePhone reads the optional {"phone":"..."} body of a payment retry.
func decodePhone(data []byte) (string, error) {
	var phone string
	if len(data) == 0 {
		return "", nil
	}
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "phone" {
			return d.Skip()
		}
		v, err := optStr(d)
		phone = v
		return err
	}); err != nil {
		return "", malformed(err)
	}
	return phone, nil
}

func decodeStatus(data []byte) (order.Status, error) {
	var raw string
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		raw = v
		return err
	}); err != nil {
		return "", malformed(err)
	}
	s, err := order.ParseStatus(raw)
	if err != nil {
		return "", &order.ValidationError{Field: "status", Reason: "unknown order status " + strconv.Quote(raw), Err: err}
	}
	return s, nil
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("studentId", func(e *jx.Encoder) { e.Str(o.StudentID) })
		e.Field("pickupCode", func(e *jx.Encoder) { e.Str(o.PickupCode) })
		e.Field("totalAmount", func(e *jx.Encoder) { encodeMoney(e, o.TotalAmount) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("paymentStatus", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("orderStatus", func(e *jx.Encoder) { e.Str(string(o.OrderStatus)) })
		if o.PaymentReceiptRef != "" {
			e.Field("paymentReceiptRef", func(e *jx.Encoder) { e.Str(o.PaymentReceiptRef) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("foodItemId", func(e *jx.Encoder) { e.Str(l.FoodItemID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, l.UnitPrice) })
						e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, l.Subtotal) })
					})
				}
			})
		})
		if !o.CreatedAt.IsZero() {
			e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(timeLayout)) })
		}
		if !o.UpdatedAt.IsZero() {
			e.Field("updatedAt", func(e *jx.Encoder) { e.Str(o.UpdatedAt.UTC().Format(timeLayout)) })
		}
	})
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
	})
}

func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Bytes())))
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
