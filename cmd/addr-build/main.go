package main

// addr-build：由 ADDR_CODES 与 ADDR_BELONGS_DATA 重建 ADDRESSES（按年份切分的五级上级展开表）
func main() {
	Execute()
}
