// pkg/sink/columns.go
package sink

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v16/arrow/array"

	"github.com/David-Botos/user-normalizer/pkg/model"
)

func (s *ParquetSink) appendColumn(b array.Builder, col model.Column, batch *model.NormalizedBatch) error {
	scaled := batch.Schema.Scaled && model.IsScaled(col.Field)

	switch col.Kind {
	case model.KindString:
		sb := b.(*array.StringBuilder)
		for i := range batch.Records {
			sb.Append(stringValue(&batch.Records[i], col.Field))
		}

	case model.KindFloat64:
		fb := b.(*array.Float64Builder)
		for i := range batch.Records {
			v, ok := floatValue(&batch.Records[i], col.Field, scaled)
			if !ok {
				fb.AppendNull()
				continue
			}
			fb.Append(v)
		}

	case model.KindInt64:
		ib := b.(*array.Int64Builder)
		for i := range batch.Records {
			v, ok := intValue(&batch.Records[i], col.Field)
			if !ok {
				ib.AppendNull()
				continue
			}
			ib.Append(v)
		}

	case model.KindBool:
		bb := b.(*array.BooleanBuilder)
		for i := range batch.Records {
			bb.Append(batch.Records[i].IsWeekend)
		}

	case model.KindTimestamp:
		tb := b.(*array.TimestampBuilder)
		for i := range batch.Records {
			t := timeValue(&batch.Records[i], col.Field)
			if t == nil {
				tb.AppendNull()
				continue
			}
			ts, err := s.conv.ArrowTimestamp(*t)
			if err != nil {
				return err
			}
			tb.Append(ts)
		}

	case model.KindIndicator:
		ub := b.(*array.Uint8Builder)
		for i := range batch.Records {
			ind := batch.Records[i].Indicators
			if col.Indicator < len(ind) && ind[col.Indicator] {
				ub.Append(1)
			} else {
				ub.Append(0)
			}
		}

	default:
		return fmt.Errorf("unsupported column kind %s", col.Kind)
	}

	return nil
}

func stringValue(r *model.NormalizedRecord, f model.Field) string {
	switch f {
	case model.ColID:
		return r.ID
	case model.ColGender:
		return r.Gender
	case model.ColCountry:
		return r.Country
	case model.ColAddress:
		return r.Address
	case model.ColProvince:
		return r.Province
	case model.ColPaymentMethod:
		return r.PaymentMethod
	case model.ColPaymentStatus:
		return r.PaymentStatus
	case model.ColPurchaseDate:
		return r.PurchaseDate
	case model.ColCategory:
		return r.Category
	}
	return ""
}

func floatValue(r *model.NormalizedRecord, f model.Field, scaled bool) (float64, bool) {
	if scaled && r.Scaled != nil {
		sc := r.Scaled
		switch f {
		case model.ColAge:
			return sc.Age, true
		case model.ColIncome:
			return sc.Income, true
		case model.ColItemsCount:
			return sc.ItemsCount, true
		case model.ColAveragePrice:
			return deref(sc.AveragePrice)
		case model.ColCreditScore:
			return deref(sc.CreditScore)
		case model.ColDaysSinceRegistration:
			return deref(sc.DaysSinceRegistration)
		}
		return 0, false
	}

	switch f {
	case model.ColAge:
		return r.Age, true
	case model.ColIncome:
		return r.Income, true
	case model.ColCreditScore:
		return deref(r.CreditScore)
	case model.ColAveragePrice:
		return deref(r.AveragePrice)
	case model.ColItemsCount:
		return float64(r.ItemsCount), true
	case model.ColDaysSinceRegistration:
		if r.DaysSinceRegistration == nil {
			return 0, false
		}
		return float64(*r.DaysSinceRegistration), true
	}
	return 0, false
}

func intValue(r *model.NormalizedRecord, f model.Field) (int64, bool) {
	switch f {
	case model.ColItemsCount:
		return int64(r.ItemsCount), true
	case model.ColLoginCount:
		return int64(r.LoginCount), true
	case model.ColDeviceCount:
		return int64(r.DeviceCount), true
	case model.ColLocationCount:
		return int64(r.LocationCount), true
	case model.ColDaysSinceRegistration:
		return derefInt(r.DaysSinceRegistration)
	case model.ColLoginHour:
		return derefInt(r.LoginHour)
	case model.ColLoginDayOfWeek:
		return derefInt(r.LoginDayOfWeek)
	}
	return 0, false
}

func timeValue(r *model.NormalizedRecord, f model.Field) *time.Time {
	switch f {
	case model.ColLastLogin:
		return r.LastLogin
	case model.ColRegistrationDate:
		return r.RegistrationDate
	case model.ColFirstLogin:
		return r.FirstLogin
	}
	return nil
}

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func derefInt(p *int) (int64, bool) {
	if p == nil {
		return 0, false
	}
	return int64(*p), true
}
