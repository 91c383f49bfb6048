// Package potassium implements the Potassium binary encoding of generic tree
// values and path arguments: one tag byte per value, chosen to keep common
// values small, with per-stream back-references for repeated bit names.
package potassium

// Value tags.
const (
	tagBooleanFalse = 0x00
	tagBooleanTrue  = 0x01
	tagEmpty        = 0x02
	tagInt8         = 0x03
	tagInt16        = 0x04
	tagInt32        = 0x05
	tagInt64        = 0x06
	tagUint8        = 0x07
	tagUint16       = 0x08
	tagUint32       = 0x09
	tagUint64       = 0x0A
	tagStringEmpty  = 0x0B
	tagStringUTF    = 0x0C
	tagString2B     = 0x0D
	tagString4B     = 0x0E
	tagStringChars  = 0x0F
	tagQName        = 0x10
	tagStringRef1B  = 0x11
	tagStringRef2B  = 0x12
	tagStringRef4B  = 0x13
	tagBinary1B     = 0x14
	tagBinary2B     = 0x15
	tagBinary4B     = 0x16
	tagYIID         = 0x17
	tagDecimal64    = 0x18

	tagInt8Zero   = 0x19
	tagInt16Zero  = 0x1A
	tagInt32Zero  = 0x1B
	tagInt64Zero  = 0x1C
	tagUint8Zero  = 0x1D
	tagUint16Zero = 0x1E
	tagUint32Zero = 0x1F
	tagUint64Zero = 0x20

	tagInt32_2B  = 0x21
	tagUint32_2B = 0x22
	tagInt64_4B  = 0x23
	tagUint64_4B = 0x24

	// 0x40..0x5C carry a bits cardinality of 0..28 inline.
	tagBits0  = 0x40
	tagBits1B = 0x5D
	tagBits2B = 0x5E
	tagBits4B = 0x5F

	// 0x60..0x7F carry an instance identifier length of 0..31 inline.
	tagYIID0  = 0x60
	tagYIID31 = 0x7F

	// 0x80..0xFF carry a binary length of 0..127 inline.
	tagBinary0 = 0x80
)

// Cumulative base offsets of the explicit-length forms.
const (
	binaryInlineMax = 128
	binary1BMax     = 384
	binary2BMax     = 65920

	bitsInlineMax = 29
	bits1BMax     = 285
	bits2BMax     = 65821

	stringRef1BMax = 256
	stringRef2BMax = 65792

	yiidInlineMax = 31

	// Strings up to this many UTF-16 units use the modified UTF-8 form with
	// a 16-bit length, which then cannot overflow.
	stringUTFMaxChars = 32767 / 2
	// Strings up to this many UTF-16 units use the UTF-8 byte form.
	stringBytesMaxChars = 1048576
)

// Path argument header: the low 2 bits select the kind; for predicates and
// augmentation identifiers the high nibble carries the count.
const (
	argNodeIdentifier               = 0x00
	argNodeIdentifierWithPredicates = 0x01
	argNodeWithValue                = 0x02
	argAugmentationIdentifier       = 0x03
	argTypeMask                     = 0x03

	argSizeShift  = 4
	argSizeMask   = 0xF0
	argSizeInline = 13
	argSize1B     = 0xD0
	argSize2B     = 0xE0
	argSize4B     = 0xF0
)
