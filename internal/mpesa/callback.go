package mpesa

import (
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/campusbite/campusbite-api/internal/domain/order"
)

// ParseCallback decodes an STK callback body:
//
//	{"Body":{"stkCallback":{"MerchantRequestID":"...","CheckoutRequestID":"...",
//	  "ResultCode":0,"ResultDesc":"...","CallbackMetadata":{"Item":[{"Name":"...","Value":...}]}}}}
//
// Metadata values keep their textual form; numbers are not reformatted.
func ParseCallback(data []byte) (order.Callback, error) {
	var (
		cb      order.Callback
		hasCode bool
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "Body" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "stkCallback" {
				return d.Skip()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "MerchantRequestID":
					v, err := scalar(d)
					cb.MerchantRequestID = v
					return err
				case "CheckoutRequestID":
					v, err := scalar(d)
					cb.CheckoutRequestID = v
					return err
				case "ResultCode":
					v, err := scalar(d)
					if err != nil {
						return err
					}
					code, err := strconv.Atoi(v)
					if err != nil {
						return errors.Wrap(err, "ResultCode")
					}
					cb.ResultCode = code
					hasCode = true
					return nil
				case "ResultDesc":
					v, err := scalar(d)
					cb.ResultDesc = v
					return err
				case "CallbackMetadata":
					items, err := decodeMetadata(d)
					cb.Metadata = items
					return err
				default:
					return d.Skip()
				}
			})
		})
	})
	if err != nil {
		return order.Callback{}, errors.Wrap(err, "decode callback")
	}
	if cb.CheckoutRequestID == "" {
		return order.Callback{}, errors.New("callback without CheckoutRequestID")
	}
	if !hasCode {
		return order.Callback{}, errors.New("callback without ResultCode")
	}
	return cb, nil
}

func decodeMetadata(d *jx.Decoder) ([]order.MetadataItem, error) {
	var items []order.MetadataItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "Item" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var it order.MetadataItem
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "Name":
					v, err := scalar(d)
					it.Name = v
					return err
				case "Value":
					v, err := scalar(d)
					it.Value = v
					return err
				default:
					return d.Skip()
				}
			}); err != nil {
				return err
			}
			items = append(items, it)
			return nil
		})
	})
	return items, err
}
