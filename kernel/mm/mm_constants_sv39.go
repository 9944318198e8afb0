package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when we
	// need to convert an address to a page number (shift right by
	// PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = uint64(1 << PageShift)

	// PAWidthSV39 is the number of significant physical address bits.
	PAWidthSV39 = 56

	// VAWidthSV39 is the number of significant virtual address bits.
	VAWidthSV39 = 39

	// PPNWidthSV39 is the number of significant physical page number bits.
	PPNWidthSV39 = PAWidthSV39 - PageShift

	// VPNWidthSV39 is the number of significant virtual page number bits.
	VPNWidthSV39 = VAWidthSV39 - PageShift

	// PageTableLevels is the depth of an SV39 page table.
	PageTableLevels = 3

	// PageTableIndexBits is the number of virtual page number bits that
	// select an entry at each page table level.
	PageTableIndexBits = 9
)
